package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/listingboard/internal/config"
	"github.com/zfogg/listingboard/internal/kernel"
	"github.com/zfogg/listingboard/internal/logger"
	"github.com/zfogg/listingboard/internal/models"
)

const statsPath = "/api/v1/listings/job/acme/dev"

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "-")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T, perMinute int) *gin.Engine {
	t.Helper()
	cfg, k := newTestKernel(t, perMinute)
	return newRouter(cfg, k)
}

func newTestKernel(t *testing.T, perMinute int) (*config.Config, *kernel.Kernel) {
	t.Helper()
	k := kernel.FullMock(map[string]string{"token-ana": "ana"})
	t.Cleanup(func() { _ = k.Clean(context.Background()) })

	require.NoError(t, k.Store().CreateListing(context.Background(), &models.Listing{
		Kind: models.KindJob, OwnerID: "acme", ListingID: "dev", Title: "Developer",
	}))

	cfg := &config.Config{
		ServiceName:        "listingboard-test",
		CORSOrigins:        []string{"http://localhost:3000"},
		RateLimitPerMinute: perMinute,
	}
	return cfg, k.Kernel
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, 60)

	w := serve(r, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestToggleThroughRouter(t *testing.T) {
	r := newTestRouter(t, 60)

	req := httptest.NewRequest("POST", statsPath+"/recommend", nil)
	req.Header.Set("Authorization", "Bearer token-ana")
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.JSONEq(t, "true", string(body["recommended"]))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(r, httptest.NewRequest("POST", statsPath+"/recommend", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatisticsAreCompressed(t *testing.T) {
	r := newTestRouter(t, 60)

	req := httptest.NewRequest("GET", statsPath+"/statistics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}

func TestInteractionsAreRateLimited(t *testing.T) {
	r := newTestRouter(t, 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", statsPath+"/click", nil)
		req.Header.Set("Authorization", "Bearer token-ana")
		codes = append(codes, serve(r, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Reads are not limited
	w := serve(r, httptest.NewRequest("GET", statsPath+"/statistics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, 60)

	req := httptest.NewRequest("OPTIONS", statsPath+"/favorite", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketMetricsRequireAuth(t *testing.T) {
	r := newTestRouter(t, 60)

	w := serve(r, httptest.NewRequest("GET", wsPath+"/metrics", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", wsPath+"/metrics", nil)
	req.Header.Set("Authorization", "Bearer token-ana")
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebSocketUpgradeThroughServer(t *testing.T) {
	cfg, k := newTestKernel(t, 60)
	srv := httptest.NewServer(newHandler(cfg, k))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + wsPath + "?token=token-ana"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var hello map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	assert.Equal(t, "system", hello["type"])

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{
		"type": "watch",
		"id":   "w1",
		"payload": map[string]any{
			"listing": map[string]string{"kind": "job", "owner_id": "acme", "listing_id": "dev"},
			"signal":  "recommend",
		},
	}))

	var ack, initial map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &ack))
	assert.Equal(t, "watching", ack["type"])
	require.NoError(t, wsjson.Read(ctx, conn, &initial))
	assert.Equal(t, "membership", initial["type"])

	// A toggle over HTTP reaches the open socket
	req, err := http.NewRequestWithContext(ctx, "POST", srv.URL+statsPath+"/recommend", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer token-ana")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var update struct {
		Type    string `json:"type"`
		Payload struct {
			Active bool `json:"active"`
		} `json:"payload"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &update))
	assert.Equal(t, "membership", update.Type)
	assert.True(t, update.Payload.Active)
}

func TestWebSocketUpgradeRejectsForgedToken(t *testing.T) {
	cfg, k := newTestKernel(t, 60)
	srv := httptest.NewServer(newHandler(cfg, k))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+wsPath+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
