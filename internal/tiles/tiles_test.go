package tiles

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetPut(t *testing.T) {
	c := NewCache(10, time.Minute)
	assert.Nil(t, c.Get(1, 0, 0))

	c.Put(1, 0, 0, []byte("tile"))
	assert.Equal(t, []byte("tile"), c.Get(1, 0, 0))

	c.Put(1, 0, 0, []byte("newer"))
	assert.Equal(t, []byte("newer"), c.Get(1, 0, 0))

	st := c.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 1e-9)
}

func TestCache_TTL(t *testing.T) {
	c := NewCache(10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put(3, 1, 1, []byte("x"))
	now = now.Add(61 * time.Second)
	assert.Nil(t, c.Get(3, 1, 1))
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCache_LRU(t *testing.T) {
	c := NewCache(2, time.Hour)
	c.Put(1, 0, 0, []byte("a"))
	c.Put(1, 0, 1, []byte("b"))
	c.Get(1, 0, 0)
	c.Put(1, 1, 0, []byte("c"))

	assert.NotNil(t, c.Get(1, 0, 0))
	assert.Nil(t, c.Get(1, 0, 1))
	assert.NotNil(t, c.Get(1, 1, 0))
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, checkRange(0, 0, 0))
	assert.NoError(t, checkRange(3, 7, 7))
	for _, c := range [][3]int{{-1, 0, 0}, {23, 0, 0}, {3, 8, 0}, {3, 0, -1}} {
		err := checkRange(c[0], c[1], c[2])
		assert.True(t, eris.Is(err, ErrTileRange), "%v", c)
	}
}

func upstreamServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "response-map-test", r.Header.Get("User-Agent"))
		if r.URL.Path == "/light_all/5/1/1.png" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprintf(w, "png:%s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProxy_FetchAndCache(t *testing.T) {
	var calls atomic.Int64
	srv := upstreamServer(t, &calls)

	p := NewProxy(Options{BaseURL: srv.URL + "/light_all/", UserAgent: "response-map-test"}, NewCache(10, time.Minute))
	data, err := p.Fetch(context.Background(), 4, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, "png:/light_all/4/3/2.png", string(data))

	_, err = p.Fetch(context.Background(), 4, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestProxy_UpstreamError(t *testing.T) {
	var calls atomic.Int64
	srv := upstreamServer(t, &calls)

	p := NewProxy(Options{BaseURL: srv.URL + "/light_all", UserAgent: "response-map-test", Retry: fastRetry}, nil)
	_, err := p.Fetch(context.Background(), 5, 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream returned 503")
	assert.Equal(t, int64(3), calls.Load())
}

var fastRetry = RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

func TestProxy_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("tile"))
	}))
	t.Cleanup(srv.Close)

	p := NewProxy(Options{BaseURL: srv.URL, Retry: fastRetry}, nil)
	data, err := p.Fetch(context.Background(), 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "tile", string(data))
	assert.Equal(t, int64(2), calls.Load())
}

func TestProxy_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	p := NewProxy(Options{BaseURL: srv.URL, Retry: fastRetry}, nil)
	_, err := p.Fetch(context.Background(), 0, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream returned 404")
	assert.Equal(t, int64(1), calls.Load())
}

func TestBackoff(t *testing.T) {
	policy := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}.withDefaults()
	assert.InDelta(t, float64(100*time.Millisecond), float64(backoff(0, policy)), float64(25*time.Millisecond))
	assert.InDelta(t, float64(200*time.Millisecond), float64(backoff(1, policy)), float64(50*time.Millisecond))
	assert.InDelta(t, float64(300*time.Millisecond), float64(backoff(5, policy)), float64(75*time.Millisecond))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(statusError(http.StatusServiceUnavailable, "u")))
	assert.True(t, retryable(statusError(http.StatusTooManyRequests, "u")))
	assert.False(t, retryable(statusError(http.StatusForbidden, "u")))
	assert.False(t, retryable(eris.New("tiles: rate limit wait")))
}

func TestProxy_OutOfRangeSkipsUpstream(t *testing.T) {
	var calls atomic.Int64
	srv := upstreamServer(t, &calls)

	p := NewProxy(Options{BaseURL: srv.URL, UserAgent: "response-map-test"}, nil)
	_, err := p.Fetch(context.Background(), 2, 4, 0)
	assert.True(t, eris.Is(err, ErrTileRange))
	assert.Equal(t, int64(0), calls.Load())
}

func TestProxy_RateLimitHonorsContext(t *testing.T) {
	var calls atomic.Int64
	srv := upstreamServer(t, &calls)

	p := NewProxy(Options{BaseURL: srv.URL, UserAgent: "response-map-test", RatePerSecond: 0.001}, nil)
	_, err := p.Fetch(context.Background(), 1, 0, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Fetch(ctx, 1, 1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, int64(1), calls.Load())
}

func TestProxy_ConcurrentSameTile(t *testing.T) {
	var calls atomic.Int64
	srv := upstreamServer(t, &calls)

	p := NewProxy(Options{BaseURL: srv.URL, UserAgent: "response-map-test"}, NewCache(10, time.Minute))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := p.Fetch(context.Background(), 6, 10, 20)
			assert.NoError(t, err)
			assert.Equal(t, "png:/6/10/20.png", string(data))
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int64(16))
	assert.GreaterOrEqual(t, calls.Load(), int64(1))
}

func TestProxy_ServeHTTP(t *testing.T) {
	var calls atomic.Int64
	srv := upstreamServer(t, &calls)
	p := NewProxy(Options{BaseURL: srv.URL + "/light_all", UserAgent: "response-map-test", Retry: fastRetry}, nil)

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/tiles/{z}/{x}/{y}.png", p)

	tests := []struct {
		path   string
		status int
	}{
		{"/tiles/2/1/3.png", http.StatusOK},
		{"/tiles/a/1/3.png", http.StatusBadRequest},
		{"/tiles/2/9/3.png", http.StatusNotFound},
		{"/tiles/5/1/1.png", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
				assert.Equal(t, "png:/light_all/2/1/3.png", rec.Body.String())
			}
		})
	}
}
