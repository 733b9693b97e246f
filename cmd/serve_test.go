package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/response-map/internal/session"
)

func TestBuildServer_Health(t *testing.T) {
	c := testConfig()
	c.Export.ChromiumPath = "/nonexistent/chromium"

	h := buildServer(c, session.NewStore(2, time.Hour)).Routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotContains(t, rec.Body.String(), `"tiles"`)
}

func TestBuildServer_TileProxy(t *testing.T) {
	c := testConfig()
	c.Export.ChromiumPath = "/nonexistent/chromium"
	c.Tiles.ProxyEnabled = true
	c.Tiles.UpstreamURL = "http://127.0.0.1:1"
	c.Tiles.CacheEntries = 8
	c.Tiles.CacheTTLMinutes = 1
	c.Tiles.RatePerSecond = 100

	h := buildServer(c, session.NewStore(2, time.Hour)).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tiles/1/5/0.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, rec.Body.String(), `"tiles"`)
}

func TestSweepSessions_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweepSessions(ctx, session.NewStore(1, time.Minute), time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
