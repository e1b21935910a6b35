// Package snapshot builds and publishes the immutable, generation-tagged
// configuration bundle the data plane reads. A Snapshot is never mutated
// after Build returns it; replacing configuration always means building a
// new one and swapping a pointer.
package snapshot

import (
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/store"
)

// CompiledRule is one Gateway rule with its pattern pre-compiled and its
// GatewayNode's resolved backend address attached, ready for the Rule Index.
type CompiledRule struct {
	ID       string
	Pattern  *regexp.Regexp
	Target   string
	Priority int
	Backend  string
}

// ListenerConfig is one addr_listen worth of configuration: the Proxy that
// owns it, the domains keyed by SNI for TLS termination, and the rules
// reachable through its gateway nodes.
type ListenerConfig struct {
	Addr          string
	Proxy         model.Proxy
	TLS           bool
	Domains       map[string]model.ProxyDomain // keyed by sni
	Rules         []CompiledRule
	DefaultTarget string // high_speed_addr if set, else ""
}

// Snapshot is the immutable derived bundle the data plane consults.
type Snapshot struct {
	Generation int64
	Listeners  map[string]ListenerConfig // keyed by addr_listen
}

// Build compiles a store.Bundle into a Snapshot. Invalid rule patterns are
// dropped with a warning rather than failing the whole build, per the
// ConfigInvalid-is-partial-tolerant rule for patterns specifically (entities
// with broken references instead fail the whole build, since those indicate
// a corrupt store rather than a typo).
func Build(b store.Bundle, logger *zap.Logger) (*Snapshot, error) {
	proxiesByID := make(map[string]model.Proxy, len(b.Proxies))
	for _, p := range b.Proxies {
		proxiesByID[p.ID] = p
	}

	nodesByID := make(map[string]model.GatewayNode, len(b.Nodes))
	for _, n := range b.Nodes {
		nodesByID[n.ID] = n
	}

	// Listeners are keyed by addr_listen: that is the identity the
	// Supervisor binds sockets against and the Connection Handler looks
	// rule vectors up by.
	listeners := make(map[string]ListenerConfig, len(b.Proxies))
	proxyIDToAddr := make(map[string]string, len(b.Proxies))
	for _, p := range b.Proxies {
		lc := ListenerConfig{
			Addr:          p.AddrListen,
			Proxy:         p,
			Domains:       make(map[string]model.ProxyDomain),
			DefaultTarget: p.HighSpeedAddr,
		}
		listeners[p.AddrListen] = lc
		proxyIDToAddr[p.ID] = p.AddrListen
	}

	for _, d := range b.Domains {
		addr, known := proxyIDToAddr[d.ProxyID]
		if !known {
			return nil, unresolvedRef("proxy_domain", d.ID, "proxy_id", d.ProxyID)
		}
		lc := listeners[addr]
		if d.TLS {
			lc.TLS = true
		}
		lc.Domains[d.SNI] = d
		listeners[addr] = lc
	}

	// Map each gateway node to its owning proxy so rules can be attached to
	// the right listener.
	nodeToProxy := make(map[string]string, len(b.Nodes))
	for _, n := range b.Nodes {
		nodeToProxy[n.ID] = n.ProxyID
	}

	for _, g := range b.Gateways {
		proxyID, ok := nodeToProxy[g.GwNodeID]
		if !ok {
			return nil, unresolvedRef("gateway", g.ID, "gwnode_id", g.GwNodeID)
		}
		addr, known := proxyIDToAddr[proxyID]
		if !known {
			continue // node detached from a deleted proxy; its rules are unreachable
		}
		lc := listeners[addr]
		re, err := regexp.Compile(g.Pattern)
		if err != nil {
			if logger != nil {
				logger.Warn("dropping rule with invalid pattern",
					zap.String("gateway_id", g.ID), zap.String("pattern", g.Pattern), zap.Error(err))
			}
			continue
		}
		node := nodesByID[g.GwNodeID]
		lc.Rules = append(lc.Rules, CompiledRule{
			ID:       g.ID,
			Pattern:  re,
			Target:   g.Target,
			Priority: g.Priority,
			Backend:  node.AltTarget,
		})
		listeners[addr] = lc
	}

	// Rules are evaluated lowest priority first; the stable sort keeps the
	// bundle's order (insertion order, from the store) among equal priorities.
	for addr, lc := range listeners {
		sort.SliceStable(lc.Rules, func(i, j int) bool { return lc.Rules[i].Priority < lc.Rules[j].Priority })
		listeners[addr] = lc
	}

	return &Snapshot{Generation: b.Generation, Listeners: listeners}, nil
}

func unresolvedRef(entity, id, field, ref string) error {
	return &refError{entity: entity, id: id, field: field, ref: ref}
}

type refError struct {
	entity, id, field, ref string
}

func (e *refError) Error() string {
	return e.entity + " " + e.id + " has dangling " + e.field + " -> " + e.ref
}
