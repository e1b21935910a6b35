package ruleindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/snapshot"
	"github.com/wirelane/drawbridge/internal/store"
)

func buildIndex(t *testing.T, proxies []model.Proxy, nodes []model.GatewayNode, gateways []model.Gateway) *Index {
	t.Helper()
	snap, err := snapshot.Build(store.Bundle{Generation: 1, Proxies: proxies, Nodes: nodes, Gateways: gateways}, zap.NewNop())
	require.NoError(t, err)
	return FromSnapshot(snap)
}

func TestMatchRewritesCaptureGroups(t *testing.T) {
	idx := buildIndex(t,
		[]model.Proxy{{ID: "p1", AddrListen: "0.0.0.0:8080"}},
		[]model.GatewayNode{{ID: "n1", ProxyID: "p1", AltTarget: "127.0.0.1:9000"}},
		[]model.Gateway{{ID: "g1", GwNodeID: "n1", Pattern: `^/api/(.*)$`, Target: "/v2/$1", Priority: 10}},
	)

	d, ok := idx.Match("0.0.0.0:8080", "/api/users", "page=2")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:9000", d.Backend)
	assert.Equal(t, "/v2/users?page=2", d.Target)
}

func TestMatchPrefersLowerPriority(t *testing.T) {
	idx := buildIndex(t,
		[]model.Proxy{{ID: "p1", AddrListen: "0.0.0.0:8080"}},
		[]model.GatewayNode{{ID: "n1", ProxyID: "p1", AltTarget: "127.0.0.1:9000"}},
		[]model.Gateway{
			{ID: "g1", GwNodeID: "n1", Pattern: `^/api/(.*)$`, Target: "/v2/$1", Priority: 10},
			{ID: "g2", GwNodeID: "n1", Pattern: `^/api/admin/.*$`, Target: "/blocked", Priority: 1},
		},
	)

	d, ok := idx.Match("0.0.0.0:8080", "/api/admin/x", "")
	require.True(t, ok)
	assert.Equal(t, "/blocked", d.Target)
}

func TestMatchReturnsFalseWhenNoRuleMatches(t *testing.T) {
	idx := buildIndex(t,
		[]model.Proxy{{ID: "p1", AddrListen: "0.0.0.0:8080"}},
		nil, nil,
	)
	_, ok := idx.Match("0.0.0.0:8080", "/anything", "")
	assert.False(t, ok)
}

func TestSubstitutePreservesLiteralDollar(t *testing.T) {
	out := substitute("price: $5 for $1", []string{"/a", "a"})
	assert.Equal(t, "price: $5 for a", out)
}

func TestSubstituteWholePath(t *testing.T) {
	m := []string{"/a/b", "a/b"}
	assert.Equal(t, "/v2/a/b", substitute("/v2/$1", m))
}
