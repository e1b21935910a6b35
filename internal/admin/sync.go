package admin

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/wirelane/drawbridge/internal/snapshot"
)

// rebuildAndPublish rebuilds a Snapshot from the current entity set and, only
// once that succeeds, bumps the store generation and publishes it — the only
// path that ever advances what the data plane observes (§4.1: "a malformed
// input bundle is rejected wholesale; no partial snapshot is ever
// published"). Build is attempted before the generation counter moves so a
// rejected rebuild (e.g. a dangling proxy_id/gwnode_id reference) leaves the
// generation, and the live snapshot, untouched (§8 scenario 6).
func (s *Server) rebuildAndPublish(ctx context.Context) (*snapshot.Snapshot, error) {
	bundle, err := s.store.LoadAll()
	if err != nil {
		return nil, err
	}
	snap, err := snapshot.Build(bundle, s.logger)
	if err != nil {
		return nil, err
	}

	gen, err := s.store.BumpGeneration()
	if err != nil {
		return nil, err
	}
	snap.Generation = gen

	if err := s.snapStore.Replace(snap); err != nil {
		return nil, err
	}
	for _, bindErr := range s.supervisor.Reconcile(ctx, snap) {
		s.logger.Warn("listener bind failed during reconcile", zap.Error(bindErr))
	}
	return snap, nil
}

// handleSync serves both POST /sync/node and POST /sync/gateway: both
// trigger the same rebuild-and-publish cycle since either kind of change
// invalidates the current Snapshot equally.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap, err := s.rebuildAndPublish(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"generation": snap.Generation})
}
