package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirelane/drawbridge/internal/admin/auth"
	"github.com/wirelane/drawbridge/internal/connhandler"
	"github.com/wirelane/drawbridge/internal/routecache"
	"github.com/wirelane/drawbridge/internal/snapshot"
	"github.com/wirelane/drawbridge/internal/store"
	"github.com/wirelane/drawbridge/internal/supervisor"
	"github.com/wirelane/drawbridge/internal/telemetry"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.CreateUser("admin", "hunter22", "admin")
	require.NoError(t, err)

	snapStore := snapshot.NewStore(&snapshot.Snapshot{Generation: 0, Listeners: map[string]snapshot.ListenerConfig{}})
	cache := routecache.New(64, 4)
	h := connhandler.New(cache, telemetry.NewCollector(), nil, connhandler.DefaultConfig)
	sv := supervisor.New(h, cache, nil)
	tel := telemetry.NewCollector()
	jwtAuth := auth.New("test-secret", time.Hour)

	srv := New(st, snapStore, sv, tel, jwtAuth, nil)

	tok, err := jwtAuth.Issue("u1", "admin", "admin")
	require.NoError(t, err)
	return srv, tok
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginSucceedsAndIssuesUsableToken(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/users/login", "", loginRequest{Username: "admin", Password: "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	rec2 := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/settings/proxy", resp.Token, nil)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestProxyRoutesRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/settings/proxy", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPutProxyThenSyncPublishesSnapshot(t *testing.T) {
	srv, tok := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/settings/proxy", tok, proxyPayload{
		Title: "edge", AddrListen: "127.0.0.1:0",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec2 := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/sync/node", tok, nil)
	require.Equal(t, http.StatusOK, rec2.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["generation"])
}

func TestStatisticsDefaultReturns480Points(t *testing.T) {
	srv, tok := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/statistics/default?target=proxy", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var points []telemetry.Point
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	assert.Len(t, points, telemetry.NumBuckets)
}

func TestAutoConfigImportThenExportRoundTrips(t *testing.T) {
	srv, tok := newTestServer(t)

	yamlDoc := `
proxy:
  - name: edge
    listen: "127.0.0.1:0"
    gateway:
      - name: primary
        target: "127.0.0.1:9000"
        path:
          - priority: 10
            pattern: "^/api/(.*)$"
            target: "/v2/$1"
`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auto-config", bytes.NewBufferString(yamlDoc))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec2 := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/auto-config", tok, nil)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "edge")
}
