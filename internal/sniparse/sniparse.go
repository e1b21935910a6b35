// Package sniparse extracts the Server Name Indication value from a raw TLS
// ClientHello without consuming the connection's bytes, so the caller can
// still hand the same bytes to a real TLS handshake afterwards.
package sniparse

import (
	"bytes"
	"errors"
	"io"
	"net"
)

// ErrNoSNI indicates no SNI was found in the TLS ClientHello.
var ErrNoSNI = errors.New("no SNI found in ClientHello")

// ErrNotTLS indicates the connection does not appear to be TLS.
var ErrNotTLS = errors.New("not a TLS connection")

// BufferedConn wraps a net.Conn to allow peeking without consuming bytes.
type BufferedConn struct {
	net.Conn
	buffer *bytes.Buffer
}

// NewBufferedConn wraps conn so its first bytes can be peeked non-destructively.
func NewBufferedConn(conn net.Conn) *BufferedConn {
	return &BufferedConn{Conn: conn, buffer: new(bytes.Buffer)}
}

// Peek reads up to n bytes without consuming them. Subsequent Reads return
// the peeked bytes first.
func (bc *BufferedConn) Peek(n int) ([]byte, error) {
	if bc.buffer.Len() >= n {
		return bc.buffer.Bytes()[:n], nil
	}

	buf := make([]byte, n-bc.buffer.Len())
	read, err := bc.Conn.Read(buf)
	if read > 0 {
		bc.buffer.Write(buf[:read])
	}
	if err != nil && err != io.EOF {
		return nil, err
	}

	if bc.buffer.Len() < n {
		return bc.buffer.Bytes(), io.ErrUnexpectedEOF
	}
	return bc.buffer.Bytes()[:n], nil
}

// Read implements io.Reader, draining any peeked bytes first.
func (bc *BufferedConn) Read(b []byte) (int, error) {
	if bc.buffer.Len() > 0 {
		return bc.buffer.Read(b)
	}
	return bc.Conn.Read(b)
}

// ParseClientHelloSNI peeks at conn's first TLS record and extracts the SNI
// host name from the ClientHello, without consuming any bytes.
func ParseClientHelloSNI(conn *BufferedConn) (string, error) {
	// TLS record header: byte 0 content type (0x16 = handshake), bytes 1-2
	// version, bytes 3-4 payload length.
	header, err := conn.Peek(5)
	if err != nil {
		return "", err
	}
	if header[0] != 0x16 {
		return "", ErrNotTLS
	}

	recordLen := int(header[3])<<8 | int(header[4])
	if recordLen > 16384 {
		return "", ErrNotTLS
	}

	data, err := conn.Peek(5 + recordLen)
	if err != nil {
		return "", err
	}
	return extractSNI(data[5:])
}

func extractSNI(data []byte) (string, error) {
	if len(data) < 42 {
		return "", ErrNoSNI
	}
	if data[0] != 0x01 { // ClientHello
		return "", ErrNoSNI
	}

	// handshake type(1) + length(3) + version(2) + random(32)
	pos := 38

	if pos >= len(data) {
		return "", ErrNoSNI
	}
	sessionIDLen := int(data[pos])
	pos += 1 + sessionIDLen

	if pos+2 > len(data) {
		return "", ErrNoSNI
	}
	cipherSuitesLen := int(data[pos])<<8 | int(data[pos+1])
	pos += 2 + cipherSuitesLen

	if pos >= len(data) {
		return "", ErrNoSNI
	}
	compMethodsLen := int(data[pos])
	pos += 1 + compMethodsLen

	if pos+2 > len(data) {
		return "", ErrNoSNI
	}
	extensionsLen := int(data[pos])<<8 | int(data[pos+1])
	pos += 2

	extensionsEnd := pos + extensionsLen
	if extensionsEnd > len(data) {
		extensionsEnd = len(data)
	}

	for pos+4 <= extensionsEnd {
		extType := int(data[pos])<<8 | int(data[pos+1])
		extLen := int(data[pos+2])<<8 | int(data[pos+3])
		pos += 4

		if pos+extLen > len(data) {
			break
		}
		if extType == 0 { // server_name
			return parseSNIExtension(data[pos : pos+extLen])
		}
		pos += extLen
	}

	return "", ErrNoSNI
}

func parseSNIExtension(data []byte) (string, error) {
	if len(data) < 5 {
		return "", ErrNoSNI
	}

	listLen := int(data[0])<<8 | int(data[1])
	if listLen > len(data)-2 {
		return "", ErrNoSNI
	}

	pos := 2
	for pos+3 <= len(data) {
		nameType := data[pos]
		nameLen := int(data[pos+1])<<8 | int(data[pos+2])
		pos += 3

		if pos+nameLen > len(data) {
			return "", ErrNoSNI
		}
		if nameType == 0 { // host_name
			return string(data[pos : pos+nameLen]), nil
		}
		pos += nameLen
	}

	return "", ErrNoSNI
}
