package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/store"
)

func TestBuildAttachesRulesToOwningListener(t *testing.T) {
	proxy := model.Proxy{ID: "p1", AddrListen: "0.0.0.0:8080"}
	node := model.GatewayNode{ID: "n1", ProxyID: "p1", AltTarget: "127.0.0.1:9000"}
	rule := model.Gateway{ID: "g1", GwNodeID: "n1", Pattern: `^/api/(.*)$`, Target: "/v2/$1", Priority: 10}

	snap, err := Build(store.Bundle{
		Generation: 1,
		Proxies:    []model.Proxy{proxy},
		Nodes:      []model.GatewayNode{node},
		Gateways:   []model.Gateway{rule},
	}, zap.NewNop())
	require.NoError(t, err)

	lc := snap.Listeners["0.0.0.0:8080"]
	require.Len(t, lc.Rules, 1)
	assert.Equal(t, "127.0.0.1:9000", lc.Rules[0].Backend)
	assert.True(t, lc.Rules[0].Pattern.MatchString("/api/users"))
}

func TestBuildDropsInvalidPatternWithoutFailing(t *testing.T) {
	proxy := model.Proxy{ID: "p1", AddrListen: "0.0.0.0:8080"}
	node := model.GatewayNode{ID: "n1", ProxyID: "p1", AltTarget: "x:1"}
	bad := model.Gateway{ID: "g1", GwNodeID: "n1", Pattern: "(unterminated", Target: "/x", Priority: 1}

	snap, err := Build(store.Bundle{
		Generation: 1,
		Proxies:    []model.Proxy{proxy},
		Nodes:      []model.GatewayNode{node},
		Gateways:   []model.Gateway{bad},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, snap.Listeners["0.0.0.0:8080"].Rules)
}

func TestBuildFailsOnDanglingReference(t *testing.T) {
	rule := model.Gateway{ID: "g1", GwNodeID: "missing", Pattern: "^/$", Target: "/x", Priority: 1}
	_, err := Build(store.Bundle{Generation: 1, Gateways: []model.Gateway{rule}}, zap.NewNop())
	assert.Error(t, err)
}

func TestStoreReplaceRejectsNonIncreasingGeneration(t *testing.T) {
	s := NewStore(&Snapshot{Generation: 5, Listeners: map[string]ListenerConfig{}})
	err := s.Replace(&Snapshot{Generation: 5, Listeners: map[string]ListenerConfig{}})
	assert.Error(t, err)
	assert.EqualValues(t, 5, s.Load().Generation)
}

func TestStoreSubscribeWakesOnReplace(t *testing.T) {
	s := NewStore(&Snapshot{Generation: 1, Listeners: map[string]ListenerConfig{}})
	ch := s.Subscribe()

	require.NoError(t, s.Replace(&Snapshot{Generation: 2, Listeners: map[string]ListenerConfig{}}))

	select {
	case <-ch:
	default:
		t.Fatal("expected subscriber channel to be closed after Replace")
	}
	assert.EqualValues(t, 2, s.Load().Generation)
}
