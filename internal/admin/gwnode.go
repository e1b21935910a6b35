package admin

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/wirelane/drawbridge/internal/model"
)

func (s *Server) handleListGwNodes(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	nodes, err := s.store.ListGatewayNodes(ps.ByName("proxy_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

type gwNodePayload struct {
	ID        string `json:"id,omitempty"`
	ProxyID   string `json:"proxy_id"`
	Title     string `json:"title"`
	AltTarget string `json:"alt_target"`
	Priority  int    `json:"priority"`
}

func (s *Server) handlePutGwNode(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload gwNodePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErr(w, err)
		return
	}
	node, err := s.store.PutGatewayNode(model.GatewayNode{
		ID: payload.ID, ProxyID: payload.ProxyID, Title: payload.Title,
		AltTarget: payload.AltTarget, Priority: payload.Priority,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type idPayload struct {
	ID string `json:"id"`
}

func (s *Server) handleDeleteGwNode(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload idPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.DeleteGatewayNode(payload.ID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
