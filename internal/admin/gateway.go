package admin

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/wirelane/drawbridge/internal/model"
)

func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rules, err := s.store.ListGateways(ps.ByName("gwnode_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

type gatewayPayload struct {
	ID       string `json:"id,omitempty"`
	GwNodeID string `json:"gwnode_id"`
	Pattern  string `json:"pattern"`
	Target   string `json:"target"`
	Priority int    `json:"priority"`
}

func (s *Server) handlePutGateway(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload gatewayPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErr(w, err)
		return
	}
	g, err := s.store.PutGateway(model.Gateway{
		ID: payload.ID, GwNodeID: payload.GwNodeID,
		Pattern: payload.Pattern, Target: payload.Target, Priority: payload.Priority,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGateway(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload idPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.DeleteGateway(payload.ID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
