package admin

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/wirelane/drawbridge/internal/telemetry"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

// scopeFrom maps the "target" query parameter to a telemetry.Scope, the two
// query dimensions §4.7 names. An absent or unrecognized target aggregates
// across the proxy scope by default.
func scopeFrom(r *http.Request) telemetry.Scope {
	switch r.URL.Query().Get("target") {
	case "domain":
		return telemetry.ScopeDomain
	default:
		return telemetry.ScopeProxy
	}
}

func (s *Server) handleStatsDefault(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	key := r.URL.Query().Get("key")
	writeJSON(w, http.StatusOK, s.telemetry.Default(scopeFrom(r), key))
}

func (s *Server) handleStatsStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code, err := strconv.Atoi(ps.ByName("code"))
	if err != nil {
		writeErr(w, xerrors.NewClientError(http.StatusBadRequest, "status code must be numeric"))
		return
	}
	key := r.URL.Query().Get("key")
	writeJSON(w, http.StatusOK, s.telemetry.ByStatus(scopeFrom(r), key, code))
}

func (s *Server) handleStatsBytes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	key := r.URL.Query().Get("key")
	writeJSON(w, http.StatusOK, s.telemetry.Bytes(scopeFrom(r), key))
}
