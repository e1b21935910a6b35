// Package tlsresolve builds an SNI-keyed certificate resolver for a single
// Snapshot. One Resolver is built per snapshot generation and installed as
// a tls.Config's GetCertificate callback; replacement only ever happens on
// a snapshot transition, never by mutating a live Resolver.
package tlsresolve

import (
	"crypto/tls"
	"fmt"

	"github.com/wirelane/drawbridge/internal/snapshot"
)

// Resolver maps (listener address, SNI) pairs to pre-parsed certificate
// chains. The ProxyDomain SNI-uniqueness invariant (§4.2) is scoped per
// Proxy, so two different listeners may legitimately reuse the same SNI
// with different certificates and backends — keying on SNI alone would let
// one listener's domain shadow another's.
type Resolver struct {
	certs map[string]map[string]*tls.Certificate // addr -> sni -> cert
}

// Build parses every TLS-enabled ProxyDomain's PEM pair in s and returns a
// Resolver. A domain whose PEM fails to parse is dropped with an error
// returned alongside the partial Resolver so callers can log and continue
// (an unparseable cert does not block the rest of the snapshot from
// terminating TLS for other domains).
func Build(s *snapshot.Snapshot) (*Resolver, []error) {
	r := &Resolver{certs: make(map[string]map[string]*tls.Certificate)}
	var errs []error

	for addr, lc := range s.Listeners {
		if !lc.TLS {
			continue
		}
		for sni, d := range lc.Domains {
			if !d.TLS || d.TLSPem == "" || d.TLSKey == "" {
				continue
			}
			cert, err := tls.X509KeyPair([]byte(d.TLSPem), []byte(d.TLSKey))
			if err != nil {
				errs = append(errs, fmt.Errorf("domain %s (sni=%s): %w", d.ID, sni, err))
				continue
			}
			byAddr := r.certs[addr]
			if byAddr == nil {
				byAddr = make(map[string]*tls.Certificate)
				r.certs[addr] = byAddr
			}
			byAddr[sni] = &cert
		}
	}
	return r, errs
}

// CertificateGetter returns a tls.Config.GetCertificate callback scoped to
// the listener at addr. The connection handler builds one per accepted
// connection from the listener address it already knows, rather than
// trying to recover it from the handshake (hello.Conn.LocalAddr() would
// report the concrete interface address a "0.0.0.0:port" bind resolves to,
// not the configured addr_listen string the Snapshot is keyed by). Unknown
// SNI returns a nil certificate and nil error, which causes the handshake
// to abort (§4.5 "no certificate").
func (r *Resolver) CertificateGetter(addr string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert, ok := r.Lookup(addr, hello.ServerName)
		if !ok {
			return nil, nil
		}
		return cert, nil
	}
}

// Lookup returns the certificate registered for sni under the listener at
// addr, without going through the tls.ClientHelloInfo ceremony. Used by the
// connection handler to decide whether to attempt a handshake at all.
func (r *Resolver) Lookup(addr, sni string) (*tls.Certificate, bool) {
	byAddr, ok := r.certs[addr]
	if !ok {
		return nil, false
	}
	cert, ok := byAddr[sni]
	return cert, ok
}
