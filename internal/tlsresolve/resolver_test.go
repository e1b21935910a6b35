package tlsresolve

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/snapshot"
)

func selfSignedPEM(t *testing.T, cn string) (certPEM, keyPEM string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	var certBuf, keyBuf bytes.Buffer
	require.NoError(t, pem.Encode(&certBuf, &pem.Block{Type: "CERTIFICATE", Bytes: der}))

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(&keyBuf, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))

	return certBuf.String(), keyBuf.String()
}

func TestBuildResolvesKnownSNI(t *testing.T) {
	cert, key := selfSignedPEM(t, "a.example")
	snap := &snapshot.Snapshot{
		Generation: 1,
		Listeners: map[string]snapshot.ListenerConfig{
			"0.0.0.0:443": {
				Addr: "0.0.0.0:443",
				TLS:  true,
				Domains: map[string]model.ProxyDomain{
					"a.example": {SNI: "a.example", TLS: true, TLSPem: cert, TLSKey: key},
				},
			},
		},
	}

	r, errs := Build(snap)
	assert.Empty(t, errs)

	got, ok := r.Lookup("0.0.0.0:443", "a.example")
	assert.True(t, ok)
	assert.NotNil(t, got)

	_, ok = r.Lookup("0.0.0.0:443", "unknown.example")
	assert.False(t, ok)
}

func TestGetCertificateReturnsNilForUnknownSNI(t *testing.T) {
	r, _ := Build(&snapshot.Snapshot{Generation: 1, Listeners: map[string]snapshot.ListenerConfig{}})
	cert, err := r.CertificateGetter("0.0.0.0:443")(&tls.ClientHelloInfo{ServerName: "unknown.example"})
	assert.NoError(t, err)
	assert.Nil(t, cert)
}

// TestSameSNIIsolatedAcrossListeners asserts that two listeners reusing the
// same SNI with different certificates never cross-resolve: a connection
// arriving on listener B must not be able to resolve listener A's
// certificate for a domain it does not itself own (§4.2 testable property 2).
func TestSameSNIIsolatedAcrossListeners(t *testing.T) {
	certA, keyA := selfSignedPEM(t, "shared.example")
	certB, keyB := selfSignedPEM(t, "shared.example")

	snap := &snapshot.Snapshot{
		Generation: 1,
		Listeners: map[string]snapshot.ListenerConfig{
			"0.0.0.0:443": {
				Addr: "0.0.0.0:443",
				TLS:  true,
				Domains: map[string]model.ProxyDomain{
					"shared.example": {SNI: "shared.example", TLS: true, TLSPem: certA, TLSKey: keyA},
				},
			},
			"0.0.0.0:8443": {
				Addr: "0.0.0.0:8443",
				TLS:  true,
				Domains: map[string]model.ProxyDomain{
					"shared.example": {SNI: "shared.example", TLS: true, TLSPem: certB, TLSKey: keyB},
				},
			},
		},
	}

	r, errs := Build(snap)
	require.Empty(t, errs)

	gotA, ok := r.Lookup("0.0.0.0:443", "shared.example")
	require.True(t, ok)
	gotB, ok := r.Lookup("0.0.0.0:8443", "shared.example")
	require.True(t, ok)
	assert.NotEqual(t, gotA.Certificate, gotB.Certificate)

	_, ok = r.Lookup("0.0.0.0:9999", "shared.example")
	assert.False(t, ok, "an unrelated listener must not resolve a domain it doesn't own")
}
