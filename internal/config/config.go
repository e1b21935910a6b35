// Package config implements the YAML import/export surface described in
// spec.md §6: a Bundle mirrors the persisted entity set (proxies, their
// domains, gateway nodes, and gateway rules) in the shape the admin
// auto-config endpoint accepts and returns.
package config

import (
	"fmt"
	"regexp"

	"github.com/goccy/go-yaml"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

// Bundle is the root YAML document.
type Bundle struct {
	Proxy []ProxyDoc `yaml:"proxy"`
}

// ProxyDoc is one proxy definition plus its embedded domains, high-speed
// bypass, and gateway (rule) groups.
type ProxyDoc struct {
	Name      string       `yaml:"name"`
	Listen    string       `yaml:"listen"`
	Domains   []DomainDoc  `yaml:"domains,omitempty"`
	HighSpeed *HighSpeed   `yaml:"highspeed,omitempty"`
	Gateway   []GatewayDoc `yaml:"gateway,omitempty"`
}

type DomainDoc struct {
	Domain  string `yaml:"domain"`
	TLS     bool   `yaml:"tls"`
	TLSCert string `yaml:"tls_cert,omitempty"`
	TLSKey  string `yaml:"tls_key,omitempty"`
}

// HighSpeed references a gateway node by name: the node supplying
// high_speed_addr deterministically, per model.Proxy.HighSpeedGwID.
type HighSpeed struct {
	Enabled bool   `yaml:"enabled"`
	Target  string `yaml:"target"`
}

// GatewayDoc names one GatewayNode (by its node name and owning domain) and
// the path rules bound to it.
type GatewayDoc struct {
	Name   string     `yaml:"name"`
	Domain string     `yaml:"domain"`
	Target string     `yaml:"target"`
	Path   []PathDoc  `yaml:"path,omitempty"`
}

type PathDoc struct {
	Priority int    `yaml:"priority"`
	Pattern  string `yaml:"pattern"`
	Target   string `yaml:"target"`
}

// Entities is the flattened, ID-assigned entity set a Bundle decodes into,
// ready to hand to the store.
type Entities struct {
	Proxies []model.Proxy
	Domains []model.ProxyDomain
	Nodes   []model.GatewayNode
	Rules   []model.Gateway
}

// Decode parses YAML bytes into a Bundle, then flattens it into Entities
// with fresh IDs. Malformed YAML or an invalid pattern rejects the whole
// bundle wholesale — no partial import is ever returned (§4.1).
func Decode(data []byte) (Entities, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Entities{}, xerrors.NewConfigInvalid(fmt.Sprintf("invalid config yaml: %v", err))
	}
	return b.flatten()
}

func (b Bundle) flatten() (Entities, error) {
	var out Entities

	for _, p := range b.Proxy {
		if p.Listen == "" {
			return Entities{}, xerrors.NewConfigInvalid(fmt.Sprintf("proxy %q missing listen address", p.Name))
		}
		proxy := model.Proxy{ID: model.NewID(), Title: p.Name, AddrListen: p.Listen}

		seenSNI := make(map[string]bool, len(p.Domains))
		domainIdxByName := make(map[string]int, len(p.Domains))
		for _, d := range p.Domains {
			if d.Domain == "" {
				return Entities{}, xerrors.NewConfigInvalid(fmt.Sprintf("proxy %q has a domain with no sni", p.Name))
			}
			if seenSNI[d.Domain] {
				return Entities{}, xerrors.NewConfigInvalid(fmt.Sprintf("proxy %q has more than one domain with sni %q", p.Name, d.Domain))
			}
			seenSNI[d.Domain] = true
			out.Domains = append(out.Domains, model.ProxyDomain{
				ID: model.NewID(), ProxyID: proxy.ID,
				TLS: d.TLS, TLSPem: d.TLSCert, TLSKey: d.TLSKey, SNI: d.Domain,
			})
			domainIdxByName[d.Domain] = len(out.Domains) - 1
		}

		nodeIDByName := make(map[string]string, len(p.Gateway))
		for _, g := range p.Gateway {
			for _, path := range g.Path {
				if _, err := regexp.Compile(path.Pattern); err != nil {
					return Entities{}, xerrors.NewConfigInvalid(fmt.Sprintf("gateway %q has invalid pattern %q: %v", g.Name, path.Pattern, err))
				}
			}

			nodeID, exists := nodeIDByName[g.Name]
			if !exists {
				nodeID = model.NewID()
				nodeIDByName[g.Name] = nodeID
				out.Nodes = append(out.Nodes, model.GatewayNode{
					ID: nodeID, ProxyID: proxy.ID, Title: g.Name, AltTarget: g.Target,
				})
			}

			// Domain scopes this node to one ProxyDomain, recorded on the
			// domain row itself (ProxyDomain.GwNodeID) rather than the node.
			if g.Domain != "" {
				idx, ok := domainIdxByName[g.Domain]
				if !ok {
					return Entities{}, xerrors.NewConfigInvalid(fmt.Sprintf("gateway %q references unknown domain %q", g.Name, g.Domain))
				}
				out.Domains[idx].GwNodeID = nodeID
			}

			for _, path := range g.Path {
				out.Rules = append(out.Rules, model.Gateway{
					ID: model.NewID(), GwNodeID: nodeID,
					Pattern: path.Pattern, Target: path.Target, Priority: path.Priority,
				})
			}
		}

		if p.HighSpeed != nil && p.HighSpeed.Enabled {
			proxy.HighSpeed = true
			if nodeID, ok := nodeIDByName[p.HighSpeed.Target]; ok {
				proxy.HighSpeedGwID = nodeID
			}
		}

		out.Proxies = append(out.Proxies, proxy)
	}

	return out, nil
}

// Encode renders Entities back to canonical YAML. Gateway nodes are grouped
// by name so round-tripping an import/export cycle reproduces the same
// shape modulo ID reassignment (§8 scenario 6).
func Encode(e Entities) ([]byte, error) {
	domainsByProxy := make(map[string][]DomainDoc, len(e.Proxies))
	for _, d := range e.Domains {
		domainsByProxy[d.ProxyID] = append(domainsByProxy[d.ProxyID], DomainDoc{
			Domain: d.SNI, TLS: d.TLS, TLSCert: d.TLSPem, TLSKey: d.TLSKey,
		})
	}

	nodesByProxy := make(map[string][]model.GatewayNode, len(e.Nodes))
	nodeByID := make(map[string]model.GatewayNode, len(e.Nodes))
	for _, n := range e.Nodes {
		nodesByProxy[n.ProxyID] = append(nodesByProxy[n.ProxyID], n)
		nodeByID[n.ID] = n
	}

	domainNameByNode := make(map[string]string, len(e.Domains))
	for _, d := range e.Domains {
		if d.GwNodeID != "" {
			domainNameByNode[d.GwNodeID] = d.SNI
		}
	}

	rulesByNode := make(map[string][]model.Gateway, len(e.Rules))
	for _, r := range e.Rules {
		rulesByNode[r.GwNodeID] = append(rulesByNode[r.GwNodeID], r)
	}

	var b Bundle
	for _, p := range e.Proxies {
		doc := ProxyDoc{Name: p.Title, Listen: p.AddrListen, Domains: domainsByProxy[p.ID]}
		for _, n := range nodesByProxy[p.ID] {
			g := GatewayDoc{Name: n.Title, Target: n.AltTarget, Domain: domainNameByNode[n.ID]}
			for _, r := range rulesByNode[n.ID] {
				g.Path = append(g.Path, PathDoc{Priority: r.Priority, Pattern: r.Pattern, Target: r.Target})
			}
			doc.Gateway = append(doc.Gateway, g)
		}
		if p.HighSpeed {
			doc.HighSpeed = &HighSpeed{Enabled: true, Target: nodeByID[p.HighSpeedGwID].Title}
		}
		b.Proxy = append(b.Proxy, doc)
	}

	return yaml.Marshal(b)
}
