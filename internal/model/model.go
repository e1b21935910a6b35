// Package model defines the persisted entity types that make up a gateway's
// configuration: Proxy, ProxyDomain, GatewayNode and Gateway. These are the
// rows stored in the embedded database and the shapes the admin REST surface
// accepts and returns; internal/snapshot derives the read-optimized bundle
// the data plane actually runs against.
package model

import "github.com/google/uuid"

// NewID returns a fresh opaque entity identifier.
func NewID() string {
	return uuid.New().String()
}

// Proxy is a listener definition: one bound address, optionally fronted by
// TLS through its ProxyDomains, optionally carrying a high-speed bypass
// target for requests no Gateway rule matches.
type Proxy struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	AddrListen    string `json:"addr_listen"`
	HighSpeed     bool   `json:"high_speed"`
	HighSpeedAddr string `json:"high_speed_addr,omitempty"`
	HighSpeedGwID string `json:"high_speed_gwid,omitempty"`
}

// ProxyDomain is one TLS terminus on a Proxy, keyed by SNI.
type ProxyDomain struct {
	ID      string `json:"id"`
	ProxyID string `json:"proxy_id"`
	GwNodeID string `json:"gwnode_id,omitempty"`
	TLS     bool   `json:"tls"`
	TLSPem  string `json:"tls_pem,omitempty"`
	TLSKey  string `json:"tls_key,omitempty"`
	SNI     string `json:"sni"`
}

// GatewayNode is an alternative backend pool belonging to a Proxy. Priority
// is evaluated highest-first; this is the opposite convention from Gateway
// and must never be silently normalized away.
type GatewayNode struct {
	ID        string `json:"id"`
	ProxyID   string `json:"proxy_id"`
	Title     string `json:"title"`
	AltTarget string `json:"alt_target"`
	Priority  int    `json:"priority"`
}

// Gateway is a path routing rule bound to a GatewayNode. Priority is
// evaluated lowest-first, inverted from GatewayNode's convention.
type Gateway struct {
	ID       string `json:"id"`
	GwNodeID string `json:"gwnode_id"`
	Pattern  string `json:"pattern"`
	Target   string `json:"target"`
	Priority int    `json:"priority"`
}

// User is an administrator account authenticated against the admin REST API.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}
