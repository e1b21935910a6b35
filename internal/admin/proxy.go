package admin

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

// domainPayload is one embedded ProxyDomain in a proxy create/update body.
type domainPayload struct {
	ID      string `json:"id,omitempty"`
	TLS     bool   `json:"tls"`
	TLSPem  string `json:"tls_pem,omitempty"`
	TLSKey  string `json:"tls_key,omitempty"`
	SNI     string `json:"sni"`
}

type proxyPayload struct {
	ID            string          `json:"id,omitempty"`
	Title         string          `json:"title"`
	AddrListen    string          `json:"addr_listen"`
	HighSpeed     bool            `json:"high_speed"`
	HighSpeedGwID string          `json:"high_speed_gwid,omitempty"`
	Domains       []domainPayload `json:"domains,omitempty"`
}

func (s *Server) handleListProxies(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	proxies, err := s.store.ListProxies()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proxies)
}

func (s *Server) handleGetProxy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := s.store.GetProxy(ps.ByName("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if p == nil {
		writeErr(w, xerrors.NewClientError(http.StatusNotFound, "proxy not found"))
		return
	}
	domains, err := s.store.ListDomains(p.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proxy": p, "domains": domains})
}

// handlePutProxy creates or updates a Proxy and its embedded ProxyDomains in
// one request, per §6's "list/create/update/delete proxy + embedded
// domains" contract.
func (s *Server) handlePutProxy(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload proxyPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErr(w, err)
		return
	}

	proxy, err := s.store.PutProxy(model.Proxy{
		ID: payload.ID, Title: payload.Title, AddrListen: payload.AddrListen,
		HighSpeed: payload.HighSpeed, HighSpeedGwID: payload.HighSpeedGwID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	for _, d := range payload.Domains {
		if _, err := s.store.PutDomain(model.ProxyDomain{
			ID: d.ID, ProxyID: proxy.ID, TLS: d.TLS, TLSPem: d.TLSPem, TLSKey: d.TLSKey, SNI: d.SNI,
		}); err != nil {
			writeErr(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, proxy)
}

func (s *Server) handleDeleteProxy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.store.DeleteProxy(ps.ByName("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
