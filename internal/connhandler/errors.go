package connhandler

import (
	"errors"
	"net"
)

var (
	errHeaderTimeout   = errors.New("connhandler: header read timed out")
	errHeaderRead      = errors.New("connhandler: header read failed")
	errBadRequestLine  = errors.New("connhandler: malformed request line")
	errBadResponseLine = errors.New("connhandler: malformed response status line")
	errHeadersTooLarge = errors.New("connhandler: header block exceeds byte cap")
)

// classifyReadErr distinguishes a deadline timeout from any other read
// failure (EOF, reset, limit-reader exhaustion), since the two map to
// different client-facing statuses.
func classifyReadErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errHeaderTimeout
	}
	return errHeaderRead
}

// statusForParseError maps a HEADERS-state failure to the status the state
// machine sends the client: 408 for a stalled read that hit the time cap,
// 400 for anything else (malformed line, oversize, or a read that failed
// outright).
func statusForParseError(err error) int {
	if err == errHeaderTimeout {
		return 408
	}
	return 400
}
