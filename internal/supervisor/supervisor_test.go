package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirelane/drawbridge/internal/connhandler"
	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/routecache"
	"github.com/wirelane/drawbridge/internal/snapshot"
	"github.com/wirelane/drawbridge/internal/telemetry"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func buildSnapshot(gen int64, addr string) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Generation: gen,
		Listeners: map[string]snapshot.ListenerConfig{
			addr: {Addr: addr, Proxy: model.Proxy{AddrListen: addr}, Domains: map[string]model.ProxyDomain{}},
		},
	}
}

func TestReconcileStartsAndStopsListeners(t *testing.T) {
	h := connhandler.New(routecache.New(64, 4), telemetry.NewCollector(), nil, connhandler.DefaultConfig)
	sv := New(h, routecache.New(64, 4), nil)

	addr := freeAddr(t)
	errs := sv.Reconcile(context.Background(), buildSnapshot(1, addr))
	assert.Empty(t, errs)
	assert.Contains(t, sv.Addrs(), addr)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	conn.Close()

	errs = sv.Reconcile(context.Background(), &snapshot.Snapshot{Generation: 2, Listeners: map[string]snapshot.ListenerConfig{}})
	assert.Empty(t, errs)
	assert.NotContains(t, sv.Addrs(), addr)

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)

	sv.StopAll()
}

func TestReconcileIgnoresStaleGeneration(t *testing.T) {
	h := connhandler.New(routecache.New(64, 4), telemetry.NewCollector(), nil, connhandler.DefaultConfig)
	sv := New(h, routecache.New(64, 4), nil)

	addr := freeAddr(t)
	sv.Reconcile(context.Background(), buildSnapshot(5, addr))
	errs := sv.Reconcile(context.Background(), buildSnapshot(3, freeAddr(t)))
	assert.Empty(t, errs)
	assert.Len(t, sv.Addrs(), 1)

	sv.StopAll()
}

func TestReconcileCollectsBindErrorsWithoutFailingOthers(t *testing.T) {
	h := connhandler.New(routecache.New(64, 4), telemetry.NewCollector(), nil, connhandler.DefaultConfig)
	sv := New(h, routecache.New(64, 4), nil)

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	ok := freeAddr(t)
	snap := &snapshot.Snapshot{
		Generation: 1,
		Listeners: map[string]snapshot.ListenerConfig{
			taken.Addr().String(): {Addr: taken.Addr().String()},
			ok:                    {Addr: ok},
		},
	}

	errs := sv.Reconcile(context.Background(), snap)
	require.Len(t, errs, 1)
	assert.Contains(t, sv.Addrs(), ok)

	sv.StopAll()
}
