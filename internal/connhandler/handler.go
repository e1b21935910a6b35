// Package connhandler drives one accepted TCP connection through its full
// lifecycle: optional TLS termination, a minimal request-line/header parse,
// a Rule Index + Route Cache lookup, a backend dial, and a bidirectional
// byte shuttle. Exactly one telemetry event is recorded per connection.
package connhandler

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wirelane/drawbridge/internal/routecache"
	"github.com/wirelane/drawbridge/internal/ruleindex"
	"github.com/wirelane/drawbridge/internal/sniparse"
	"github.com/wirelane/drawbridge/internal/telemetry"
	"github.com/wirelane/drawbridge/internal/tlsresolve"
	"github.com/wirelane/drawbridge/internal/upstream"
)

// Runtime is the generation-tagged bundle a Handler matches and terminates
// TLS against. The Listener Supervisor installs a fresh Runtime every time
// it observes a new Snapshot generation.
type Runtime struct {
	Index *ruleindex.Index
	TLS   *tlsresolve.Resolver
}

// Config tunes the header, handshake, and idle budgets from §4.4.
type Config struct {
	MaxHeaderBytes  int
	HeaderTimeout   time.Duration
	HandshakeTimeout time.Duration
	IdleTimeout     time.Duration
	Dial            upstream.Config
}

// DefaultConfig matches the defaults the state machine names.
var DefaultConfig = Config{
	MaxHeaderBytes:   64 * 1024,
	HeaderTimeout:    5 * time.Second,
	HandshakeTimeout: 5 * time.Second,
	IdleTimeout:      60 * time.Second,
	Dial:             upstream.DefaultConfig,
}

// Handler turns accepted connections into proxied byte streams.
type Handler struct {
	runtime   atomic.Pointer[Runtime]
	cache     *routecache.Cache
	telemetry *telemetry.Collector
	logger    *zap.Logger
	cfg       Config
}

// New builds a Handler. cache and tel are shared across every listener;
// SetRuntime must be called at least once before Handle is safe to call.
func New(cache *routecache.Cache, tel *telemetry.Collector, logger *zap.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cache: cache, telemetry: tel, logger: logger, cfg: cfg}
}

// SetRuntime installs the Rule Index and TLS Resolver built from the latest
// snapshot. Safe to call while connections are mid-flight: in-flight
// connections keep the Runtime pointer they loaded when Handle started.
func (h *Handler) SetRuntime(rt *Runtime) {
	h.runtime.Store(rt)
}

// Handle drives conn, accepted on listenAddr, through ACCEPTED through
// CLOSED. It never panics out to the caller and always closes conn.
func (h *Handler) Handle(ctx context.Context, conn net.Conn, listenAddr string) {
	start := time.Now()
	var sni string
	var status int
	var bytesSent int64

	defer func() {
		conn.Close()
		h.logger.Info("connection closed",
			zap.String("listener", listenAddr), zap.String("sni", sni),
			zap.Int("status", status), zap.Int64("bytes", bytesSent))
		h.telemetry.Record(telemetry.Event{
			ProxyAddr: listenAddr,
			SNI:       sni,
			Status:    status,
			BytesSent: bytesSent,
			At:        start,
		})
	}()

	rt := h.runtime.Load()
	if rt == nil {
		return
	}
	lc, ok := rt.Index.Listener(listenAddr)
	if !ok {
		return
	}

	var wire net.Conn = conn

	if lc.TLS {
		buffered := sniparse.NewBufferedConn(conn)
		peeked, err := sniparse.ParseClientHelloSNI(buffered)
		if err != nil {
			// Not a TLS ClientHello, or malformed: close without alert
			// rather than let tls.Server attempt (and fail noisily on) a
			// handshake it cannot complete.
			return
		}
		sni = peeked
		if _, known := rt.TLS.Lookup(listenAddr, sni); !known {
			return
		}

		tlsConn := tls.Server(buffered, &tls.Config{
			GetCertificate: rt.TLS.CertificateGetter(listenAddr),
			MinVersion:     tls.VersionTLS12,
		})
		hctx, cancel := context.WithTimeout(ctx, h.cfg.HandshakeTimeout)
		err = tlsConn.HandshakeContext(hctx)
		cancel()
		if err != nil {
			h.logger.Debug("tls handshake failed", zap.String("sni", sni), zap.Error(err))
			return
		}
		wire = tlsConn
	}

	wire.SetReadDeadline(time.Now().Add(h.cfg.HeaderTimeout))
	req, err := readRequest(wire, h.cfg.MaxHeaderBytes)
	if err != nil {
		status = statusForParseError(err)
		writeMinimalResponse(wire, status)
		return
	}
	wire.SetReadDeadline(time.Time{})

	decision, ok := h.route(listenAddr, rt.Index, req.path, req.query)
	if !ok {
		if lc.DefaultTarget == "" {
			status = 404
			writeMinimalResponse(wire, status)
			return
		}
		decision = ruleindex.Decision{Backend: lc.DefaultTarget, Target: req.requestTarget()}
	}

	backend, err := upstream.Dial(ctx, decision.Backend, h.cfg.Dial)
	if err != nil {
		h.logger.Debug("upstream dial failed", zap.String("backend", decision.Backend), zap.Error(err))
		status = 502
		writeMinimalResponse(wire, status)
		return
	}
	defer backend.Close()

	if err := writeRewrittenRequest(backend, req, decision.Target); err != nil {
		status = 502
		return
	}

	sent, respStatus := h.stream(wire, backend)
	bytesSent = sent
	status = respStatus
}

// route consults the Route Cache before falling back to the Rule Index,
// caching only confirmed matches so transient fallback templates never
// poison the cache (§4.3, §4.4).
func (h *Handler) route(addr string, idx *ruleindex.Index, path, query string) (ruleindex.Decision, bool) {
	key := routecache.Key(path, query)
	if e, ok := h.cache.Get(key); ok {
		return ruleindex.Decision{Backend: e.Backend, Target: e.Target}, true
	}
	d, ok := idx.Match(addr, path, query)
	if ok {
		h.cache.Put(key, routecache.Entry{Target: d.Target, Backend: d.Backend})
	}
	return d, ok
}

// stream shuttles bytes bidirectionally until either side signals EOF, the
// idle timeout elapses, or a peer errors. It parses the backend's response
// status line before forwarding any of the response onward, so the status
// recorded in telemetry (§4.7) reflects what the backend actually sent
// rather than a synthesized value. It returns the byte count sent to the
// client and that parsed status (502 if the backend's response couldn't be
// parsed at all).
func (h *Handler) stream(client, backend net.Conn) (int64, int) {
	backend.SetReadDeadline(time.Now().Add(h.cfg.HeaderTimeout))
	status, lead, err := readResponseStatusLine(backend, h.cfg.MaxHeaderBytes)
	backend.SetReadDeadline(time.Time{})
	if err != nil {
		return 0, 502
	}

	var wg sync.WaitGroup
	var toClient, toBackend int64

	wg.Add(2)
	go func() {
		defer wg.Done()
		toBackend = h.copyWithIdle(backend, client)
	}()
	go func() {
		defer wg.Done()
		n, werr := client.Write(lead)
		toClient = int64(n)
		if werr != nil {
			return
		}
		toClient += h.copyWithIdle(client, backend)
	}()
	wg.Wait()

	_ = toBackend
	return toClient, status
}

// readResponseStatusLine reads the backend's status line (e.g.
// "HTTP/1.1 200 OK\r\n") and returns the parsed code alongside every byte
// already pulled off the wire in doing so (the status line plus whatever
// the buffered reader read ahead of it), so the caller can forward that
// lead-in before switching to a raw copy of the rest of the response.
func readResponseStatusLine(conn net.Conn, maxBytes int) (int, []byte, error) {
	limited := io.LimitReader(conn, int64(maxBytes)+1)
	br := bufio.NewReader(limited)

	line, err := br.ReadString('\n')
	if err != nil {
		return 0, nil, classifyReadErr(err)
	}
	status, ok := parseStatusLine(line)
	if !ok {
		return 0, nil, errBadResponseLine
	}

	lead := make([]byte, len(line)+br.Buffered())
	n := copy(lead, line)
	if _, err := io.ReadFull(br, lead[n:]); err != nil {
		return 0, nil, err
	}
	return status, lead, nil
}

func parseStatusLine(line string) (int, bool) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, false
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 599 {
		return 0, false
	}
	return code, true
}

func (h *Handler) copyWithIdle(dst io.Writer, src net.Conn) int64 {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		src.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		n, err := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total
			}
		}
		if err != nil {
			return total
		}
	}
}

type parsedRequest struct {
	method, path, query, proto string
	headerBlock                string
}

func (r parsedRequest) requestTarget() string {
	if r.query == "" {
		return r.path
	}
	return r.path + "?" + r.query
}

func readRequest(conn net.Conn, maxBytes int) (parsedRequest, error) {
	limited := io.LimitReader(conn, int64(maxBytes)+1)
	br := bufio.NewReader(limited)

	line, err := br.ReadString('\n')
	if err != nil {
		return parsedRequest{}, classifyReadErr(err)
	}
	method, path, query, proto, ok := parseRequestLine(line)
	if !ok {
		return parsedRequest{}, errBadRequestLine
	}

	var headerBuf strings.Builder
	headerBuf.WriteString(line)
	for {
		hl, err := br.ReadString('\n')
		headerBuf.WriteString(hl)
		if headerBuf.Len() > maxBytes {
			return parsedRequest{}, errHeadersTooLarge
		}
		if err != nil {
			return parsedRequest{}, classifyReadErr(err)
		}
		if strings.TrimRight(hl, "\r\n") == "" {
			break
		}
	}

	return parsedRequest{
		method:      method,
		path:        path,
		query:       query,
		proto:       proto,
		headerBlock: headerBuf.String(),
	}, nil
}

func parseRequestLine(line string) (method, path, query, proto string, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", "", false
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if method == "" || !strings.HasPrefix(target, "/") {
		return "", "", "", "", false
	}
	path, query = target, ""
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		path, query = target[:idx], target[idx+1:]
	}
	return method, path, query, proto, true
}

func writeRewrittenRequest(w io.Writer, req parsedRequest, rewrittenTarget string) error {
	headerLines := strings.SplitN(req.headerBlock, "\n", 2)
	rest := ""
	if len(headerLines) == 2 {
		rest = headerLines[1]
	}
	_, err := fmt.Fprintf(w, "%s %s %s\r\n%s", req.method, rewrittenTarget, req.proto, rest)
	return err
}

func writeMinimalResponse(w io.Writer, status int) {
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", status, statusText(status))
}

func statusText(status int) string {
	switch status {
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 408:
		return "Request Timeout"
	case 502:
		return "Bad Gateway"
	default:
		return "Error"
	}
}
