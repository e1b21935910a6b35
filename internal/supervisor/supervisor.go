// Package supervisor owns the set of bound listener sockets and keeps it in
// sync with the current Snapshot: an address present in a new Snapshot but
// missing locally gets a fresh accept task, one present locally but no
// longer in the Snapshot is stopped. It never restarts a listener merely
// because a Proxy's TLS setting or rule set changed underneath it — that
// decision is made per-connection by the Connection Handler, which loads the
// freshest Runtime when it starts handling each accepted connection,
// regardless of when its socket was opened.
package supervisor

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wirelane/drawbridge/internal/connhandler"
	"github.com/wirelane/drawbridge/internal/routecache"
	"github.com/wirelane/drawbridge/internal/ruleindex"
	"github.com/wirelane/drawbridge/internal/snapshot"
	"github.com/wirelane/drawbridge/internal/tlsresolve"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

// managedListener is one accept task bound to a single addr_listen.
type managedListener struct {
	addr   string
	ln     net.Listener
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor reconciles bound sockets against Snapshot generations.
type Supervisor struct {
	mu        sync.Mutex
	listeners map[string]*managedListener

	handler *connhandler.Handler
	cache   *routecache.Cache
	logger  *zap.Logger

	curGen int64
}

// New creates a Supervisor driving handler and clearing cache on every
// successful reconcile (a cached decision is only valid for the index
// generation that produced it).
func New(handler *connhandler.Handler, cache *routecache.Cache, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		listeners: make(map[string]*managedListener),
		handler:   handler,
		cache:     cache,
		logger:    logger,
	}
}

// Reconcile brings the bound socket set in line with snap and installs a
// fresh connhandler.Runtime built from it. Bind failures for individual
// addresses are collected and returned but do not prevent other addresses
// in the same Snapshot from starting — a BindError on one listener never
// takes down another.
func (sv *Supervisor) Reconcile(ctx context.Context, snap *snapshot.Snapshot) []error {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if snap.Generation <= sv.curGen && sv.curGen != 0 {
		return nil
	}

	tlsResolver, tlsErrs := tlsresolve.Build(snap)
	for _, e := range tlsErrs {
		sv.logger.Warn("dropping unparsable certificate", zap.Error(e))
	}
	sv.handler.SetRuntime(&connhandler.Runtime{
		Index: ruleindex.FromSnapshot(snap),
		TLS:   tlsResolver,
	})
	sv.cache.Clear()
	sv.curGen = snap.Generation

	var errs []error

	for addr := range snap.Listeners {
		if _, exists := sv.listeners[addr]; exists {
			continue
		}
		ml, err := sv.start(ctx, addr)
		if err != nil {
			errs = append(errs, xerrors.NewBindError(addr, err))
			continue
		}
		sv.listeners[addr] = ml
	}

	for addr, ml := range sv.listeners {
		if _, stillWanted := snap.Listeners[addr]; stillWanted {
			continue
		}
		sv.stop(ml)
		delete(sv.listeners, addr)
	}

	return errs
}

func (sv *Supervisor) start(parent context.Context, addr string) (*managedListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	ml := &managedListener{addr: addr, ln: ln, cancel: cancel, done: make(chan struct{})}

	go sv.acceptLoop(ctx, ml)
	sv.logger.Info("listener started", zap.String("addr", addr))
	return ml, nil
}

func (sv *Supervisor) acceptLoop(ctx context.Context, ml *managedListener) {
	defer close(ml.done)

	var g errgroup.Group
	for {
		conn, err := ml.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				g.Wait()
				return
			default:
				sv.logger.Warn("accept error", zap.String("addr", ml.addr), zap.Error(err))
				continue
			}
		}
		g.Go(func() error {
			sv.handler.Handle(ctx, conn, ml.addr)
			return nil
		})
	}
}

// stop closes the listener socket and waits (bounded) for its accept loop
// to notice and return. In-flight connections already accepted are left to
// finish on their own — the Connection Handler owns their lifecycle, not
// the listener.
func (sv *Supervisor) stop(ml *managedListener) {
	ml.cancel()
	ml.ln.Close()

	select {
	case <-ml.done:
	case <-time.After(5 * time.Second):
		sv.logger.Warn("listener stop timed out", zap.String("addr", ml.addr))
	}
}

// StopAll tears down every bound listener. Intended for process shutdown.
func (sv *Supervisor) StopAll() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for addr, ml := range sv.listeners {
		sv.stop(ml)
		delete(sv.listeners, addr)
	}
}

// Addrs returns the currently bound listener addresses, for observability.
func (sv *Supervisor) Addrs() []string {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	out := make([]string, 0, len(sv.listeners))
	for addr := range sv.listeners {
		out = append(out, addr)
	}
	return out
}
