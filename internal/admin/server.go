// Package admin implements the REST control surface: login, CRUD over
// proxies/domains/gateway nodes/gateway rules, snapshot sync triggers,
// statistics queries, and YAML auto-config import/export. It is a thin
// adapter over internal/store, internal/snapshot, and internal/supervisor —
// none of the data-plane's hot path runs through here.
package admin

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/wirelane/drawbridge/internal/admin/auth"
	"github.com/wirelane/drawbridge/internal/snapshot"
	"github.com/wirelane/drawbridge/internal/store"
	"github.com/wirelane/drawbridge/internal/supervisor"
	"github.com/wirelane/drawbridge/internal/telemetry"
)

// Server wires the admin REST surface to the rest of the gateway.
type Server struct {
	store      *store.Store
	snapStore  *snapshot.Store
	supervisor *supervisor.Supervisor
	telemetry  *telemetry.Collector
	auth       *auth.JWTAuth
	logger     *zap.Logger
	router     *httprouter.Router
}

// New builds a Server and registers every route from spec.md §6.
func New(st *store.Store, snapStore *snapshot.Store, sv *supervisor.Supervisor, tel *telemetry.Collector, jwtAuth *auth.JWTAuth, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: st, snapStore: snapStore, supervisor: sv, telemetry: tel, auth: jwtAuth, logger: logger, router: httprouter.New()}
	s.routes()
	return s
}

// Handler returns the http.Handler to serve the admin listener with.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.POST("/api/v1/users/login", s.handleLogin)
	s.router.GET("/api/v1/health", s.handleHealth)

	s.router.GET("/api/v1/settings/proxy", s.authed(s.handleListProxies))
	s.router.GET("/api/v1/settings/proxy/:id", s.authed(s.handleGetProxy))
	s.router.POST("/api/v1/settings/proxy", s.authed(s.handlePutProxy))
	s.router.DELETE("/api/v1/settings/proxy/:id", s.authed(s.handleDeleteProxy))

	s.router.GET("/api/v1/settings/gwnode/list/:proxy_id", s.authed(s.handleListGwNodes))
	s.router.POST("/api/v1/settings/gwnode/set", s.authed(s.handlePutGwNode))
	s.router.POST("/api/v1/settings/gwnode/delete", s.authed(s.handleDeleteGwNode))

	s.router.GET("/api/v1/settings/gateway/list/:gwnode_id", s.authed(s.handleListGateways))
	s.router.POST("/api/v1/settings/gateway/set", s.authed(s.handlePutGateway))
	s.router.POST("/api/v1/settings/gateway/delete", s.authed(s.handleDeleteGateway))

	s.router.POST("/api/v1/sync/node", s.authed(s.handleSync))
	s.router.POST("/api/v1/sync/gateway", s.authed(s.handleSync))

	s.router.GET("/api/v1/statistics/default", s.authed(s.handleStatsDefault))
	s.router.GET("/api/v1/statistics/status/:code", s.authed(s.handleStatsStatus))
	s.router.GET("/api/v1/statistics/bytes", s.authed(s.handleStatsBytes))

	s.router.GET("/api/v1/auto-config", s.authed(s.handleExportConfig))
	s.router.POST("/api/v1/auto-config", s.authed(s.handleImportConfig))
}

// authed wraps an httprouter.Handle with the bearer-token middleware,
// threading httprouter.Params through the closure since the middleware's
// net/http signature has no room for them.
func (s *Server) authed(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		wrapped := s.auth.Middleware(http.HandlerFunc(func(w2 http.ResponseWriter, r2 *http.Request) {
			h(w2, r2, ps)
		}))
		wrapped.ServeHTTP(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "listeners": s.supervisor.Addrs()})
}
