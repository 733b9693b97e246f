package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// MaxZoom is the deepest zoom level the proxy forwards.
const MaxZoom = 22

// ErrTileRange marks tile coordinates outside the z/x/y grid.
var ErrTileRange = eris.New("tile coordinates out of range")

// Options configures a Proxy.
type Options struct {
	BaseURL       string // upstream prefix; tiles are fetched from {BaseURL}/{z}/{x}/{y}.png
	UserAgent     string
	RatePerSecond float64
	Retry         RetryPolicy
	Client        *http.Client
}

// Proxy fetches basemap tiles upstream, rate-limited and cached.
type Proxy struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	retry     RetryPolicy
	cache     *Cache
	group     singleflight.Group
}

// NewProxy creates a proxy. cache may be nil.
func NewProxy(opts Options, cache *Cache) *Proxy {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "response-map/1.0"
	}
	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = max(1, int(opts.RatePerSecond))
	}
	return &Proxy{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: ua,
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		retry:     opts.Retry,
		cache:     cache,
	}
}

// Fetch returns the tile at z/x/y. Concurrent requests for the same tile
// share one upstream call.
func (p *Proxy) Fetch(ctx context.Context, z, x, y int) ([]byte, error) {
	if err := checkRange(z, x, y); err != nil {
		return nil, err
	}
	if p.cache != nil {
		if data := p.cache.Get(z, x, y); data != nil {
			return data, nil
		}
	}

	key := tileKey(z, x, y)
	v, err, _ := p.group.Do(key, func() (any, error) {
		return withRetry(ctx, p.retry, key, func(ctx context.Context) ([]byte, error) {
			return p.fetchUpstream(ctx, z, x, y)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (p *Proxy) fetchUpstream(ctx context.Context, z, x, y int) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "tiles: rate limit wait")
	}

	url := fmt.Sprintf("%s/%d/%d/%d.png", p.baseURL, z, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "tiles: create request")
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "tiles: read tile body")
	}
	if p.cache != nil {
		p.cache.Put(z, x, y, data)
	}

	zap.L().Debug("tiles: fetched upstream tile",
		zap.String("component", "tiles"),
		zap.String("url", url),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

func checkRange(z, x, y int) error {
	if z < 0 || z > MaxZoom {
		return eris.Wrapf(ErrTileRange, "tiles: zoom %d", z)
	}
	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return eris.Wrapf(ErrTileRange, "tiles: %d/%d/%d", z, x, y)
	}
	return nil
}

// ServeHTTP serves /{z}/{x}/{y}.png routed through chi.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(strings.TrimSuffix(chi.URLParam(r, "y"), ".png"))
	if errZ != nil || errX != nil || errY != nil {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	data, err := p.Fetch(r.Context(), z, x, y)
	if err != nil {
		if eris.Is(err, ErrTileRange) {
			http.Error(w, "tile out of range", http.StatusNotFound)
			return
		}
		zap.L().Warn("tiles: fetch failed", zap.String("component", "tiles"), zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

// LocalURL is the Leaflet URL template for tiles served by this proxy.
const LocalURL = "/tiles/{z}/{x}/{y}.png"
