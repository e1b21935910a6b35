package connhandler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/routecache"
	"github.com/wirelane/drawbridge/internal/ruleindex"
	"github.com/wirelane/drawbridge/internal/snapshot"
	"github.com/wirelane/drawbridge/internal/store"
	"github.com/wirelane/drawbridge/internal/telemetry"
	"github.com/wirelane/drawbridge/internal/tlsresolve"
)

func buildRuntime(t *testing.T, backendAddr, listenAddr string) *Runtime {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.PutProxy(model.Proxy{ID: model.NewID(), Title: "p", AddrListen: listenAddr})
	require.NoError(t, err)
	proxies, err := s.ListProxies()
	require.NoError(t, err)

	node := model.GatewayNode{ID: model.NewID(), ProxyID: proxies[0].ID, Title: "n", AltTarget: backendAddr, Priority: 1}
	_, err = s.PutGatewayNode(node)
	require.NoError(t, err)

	_, err = s.PutGateway(model.Gateway{ID: model.NewID(), GwNodeID: node.ID, Pattern: `^/api/(.*)$`, Target: "/v2/$1", Priority: 10})
	require.NoError(t, err)

	b, err := s.LoadAll()
	require.NoError(t, err)
	snap, err := snapshot.Build(b, nil)
	require.NoError(t, err)

	tlsr, errs := tlsresolve.Build(snap)
	require.Empty(t, errs)

	return &Runtime{Index: ruleindex.FromSnapshot(snap), TLS: tlsr}
}

func TestHandleRewritesAndForwardsPlaintext(t *testing.T) {
	backend, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer backend.Close()

	received := make(chan string, 1)
	go func() {
		c, err := backend.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 4096)
		n, _ := c.Read(buf)
		received <- string(buf[:n])
		c.Write([]byte("HTTP/1.1 201 Created\r\nContent-Length: 2\r\n\r\nok"))
	}()

	listenAddr := "0.0.0.0:8080"
	rt := buildRuntime(t, backend.Addr().String(), listenAddr)

	tel := telemetry.NewCollector()
	h := New(routecache.New(64, 4), tel, nil, DefaultConfig)
	h.SetRuntime(rt)

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.Handle(context.Background(), server, listenAddr)
		close(done)
	}()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Write([]byte("GET /api/users?page=2 HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Contains(t, got, "GET /v2/users?page=2 HTTP/1.1")
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received a request")
	}

	buf := make([]byte, 64)
	n, _ := client.Read(buf)
	assert.Contains(t, string(buf[:n]), "201 Created")
	assert.Contains(t, string(buf[:n]), "ok")
	client.Close()
	<-done

	points := tel.ByStatus(telemetry.ScopeProxy, listenAddr, 201)
	var total float64
	for _, p := range points {
		total += p.Value
	}
	assert.Equal(t, float64(1), total, "telemetry should have recorded the backend's real 201 status, not a synthesized one")
}

func TestHandleReturns404WhenNoRuleMatchesAndNoHighSpeed(t *testing.T) {
	listenAddr := "0.0.0.0:9090"
	rt := buildRuntime(t, "127.0.0.1:1", listenAddr)

	h := New(routecache.New(64, 4), telemetry.NewCollector(), nil, DefaultConfig)
	h.SetRuntime(rt)

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.Handle(context.Background(), server, listenAddr)
		close(done)
	}()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte("GET /nomatch HTTP/1.1\r\nHost: x\r\n\r\n"))

	buf := make([]byte, 256)
	n, _ := client.Read(buf)
	assert.Contains(t, string(buf[:n]), "404")
	client.Close()
	<-done
}

func TestHandleClosesSilentlyOnUnknownListener(t *testing.T) {
	h := New(routecache.New(64, 4), telemetry.NewCollector(), nil, DefaultConfig)
	h.SetRuntime(&Runtime{Index: ruleindex.FromSnapshot(&snapshot.Snapshot{Generation: 1, Listeners: map[string]snapshot.ListenerConfig{}})})

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.Handle(context.Background(), server, "0.0.0.0:1234")
		close(done)
	}()
	client.SetDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 8)
	_, err := client.Read(buf)
	assert.Error(t, err)
	client.Close()
	<-done
}

func TestParseRequestLineRejectsMalformedTarget(t *testing.T) {
	_, _, _, _, ok := parseRequestLine("GET users HTTP/1.1\r\n")
	assert.False(t, ok)
}

func TestParseRequestLineSplitsQuery(t *testing.T) {
	method, path, query, proto, ok := parseRequestLine("GET /a/b?x=1 HTTP/1.1\r\n")
	require.True(t, ok)
	assert.Equal(t, "GET", method)
	assert.Equal(t, "/a/b", path)
	assert.Equal(t, "x=1", query)
	assert.Equal(t, "HTTP/1.1", proto)
}
