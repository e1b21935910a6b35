package store

import "github.com/wirelane/drawbridge/internal/model"

// Bundle is the full entity set as read from the store, the raw material
// the snapshot builder compiles into an internal/snapshot.Snapshot.
type Bundle struct {
	Generation int64
	Proxies    []model.Proxy
	Domains    []model.ProxyDomain
	Nodes      []model.GatewayNode
	Gateways   []model.Gateway
}

// LoadAll reads the entire entity set plus the current generation in one
// call, for snapshot (re)builds.
func (s *Store) LoadAll() (Bundle, error) {
	gen, err := s.CurrentGeneration()
	if err != nil {
		return Bundle{}, err
	}
	proxies, err := s.ListProxies()
	if err != nil {
		return Bundle{}, err
	}
	domains, err := s.ListAllDomains()
	if err != nil {
		return Bundle{}, err
	}
	nodes, err := s.ListAllGatewayNodes()
	if err != nil {
		return Bundle{}, err
	}
	gateways, err := s.ListAllGatewaysOrdered()
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Generation: gen,
		Proxies:    proxies,
		Domains:    domains,
		Nodes:      nodes,
		Gateways:   gateways,
	}, nil
}
