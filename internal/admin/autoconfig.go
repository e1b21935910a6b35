package admin

import (
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/wirelane/drawbridge/internal/config"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

// handleExportConfig serves the current entity set as canonical YAML.
func (s *Server) handleExportConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bundle, err := s.store.LoadAll()
	if err != nil {
		writeErr(w, err)
		return
	}
	out, err := config.Encode(config.Entities{
		Proxies: bundle.Proxies, Domains: bundle.Domains, Nodes: bundle.Nodes, Rules: bundle.Gateways,
	})
	if err != nil {
		writeErr(w, xerrors.NewStorageError(err))
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// handleImportConfig replaces the entire entity set from a posted YAML
// document and republishes a Snapshot. A malformed document, or one with
// an invalid pattern, is rejected wholesale — the prior configuration stays
// active and the generation is unchanged (§8 scenario 6).
func (s *Server) handleImportConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, xerrors.NewConfigInvalid("could not read request body"))
		return
	}
	defer r.Body.Close()

	entities, err := config.Decode(body)
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := s.replaceAllEntities(entities); err != nil {
		writeErr(w, err)
		return
	}

	snap, err := s.rebuildAndPublish(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"generation": snap.Generation})
}

// replaceAllEntities wipes and reinserts the full entity set. Proxies are
// deleted first (cascading domains, detaching nodes) so the import starts
// from a clean slate rather than merging with whatever existed before.
func (s *Server) replaceAllEntities(e config.Entities) error {
	existing, err := s.store.ListProxies()
	if err != nil {
		return err
	}
	for _, p := range existing {
		if err := s.store.DeleteProxy(p.ID); err != nil {
			return err
		}
	}
	existingNodes, err := s.store.ListAllGatewayNodes()
	if err != nil {
		return err
	}
	for _, n := range existingNodes {
		if err := s.store.DeleteGatewayNode(n.ID); err != nil {
			return err
		}
	}

	for _, p := range e.Proxies {
		if _, err := s.store.PutProxy(p); err != nil {
			return err
		}
	}
	for _, n := range e.Nodes {
		if _, err := s.store.PutGatewayNode(n); err != nil {
			return err
		}
	}
	for _, d := range e.Domains {
		if _, err := s.store.PutDomain(d); err != nil {
			return err
		}
	}
	for _, g := range e.Rules {
		if _, err := s.store.PutGateway(g); err != nil {
			return err
		}
	}
	return nil
}
