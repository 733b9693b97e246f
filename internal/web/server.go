// Package web is the browser surface: upload, column mapping, filters, the
// map view and downloads.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/response-map/internal/export"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/mapview"
	"github.com/sells-group/response-map/internal/session"
	"github.com/sells-group/response-map/internal/tiles"
)

// Options configures the web surface.
type Options struct {
	MaxUploadBytes int64
	SheetName      string
	Parse          incident.ParseOptions
	Map            mapview.Options // defaults; ShowLegend is the initial toggle state
	RasterTimeout  time.Duration
}

// Server holds the handlers' dependencies.
type Server struct {
	opts      Options
	sessions  *session.Store
	raster    export.Rasterizer
	proxy     *tiles.Proxy
	tileCache *tiles.Cache
	pages     *pages
}

// New creates a Server. raster and proxy may be nil to disable PNG export
// and the tile proxy.
func New(opts Options, sessions *session.Store, raster export.Rasterizer, proxy *tiles.Proxy, tileCache *tiles.Cache) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Server{
		opts:      opts,
		sessions:  sessions,
		raster:    raster,
		proxy:     proxy,
		tileCache: tileCache,
		pages:     mustParsePages(),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleIndex)
	r.Post("/upload", s.handleUpload)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/configure", s.handleConfigure)
		r.Get("/map", s.handleMap)
		r.Get("/map/frame", s.handleFrame)
		r.Get("/export/map.html", s.handleExportHTML)
		r.Get("/export/map.png", s.handleExportPNG)
		r.Get("/export/records.xlsx", s.handleExportXLSX)
	})

	if s.proxy != nil {
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{http.MethodGet, http.MethodOptions},
				MaxAge:         300,
			}))
			r.Method(http.MethodGet, "/tiles/{z}/{x}/{y}.png", s.proxy)
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Stats(),
	}
	if s.tileCache != nil {
		body["tiles"] = s.tileCache.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

type ctxKey struct{}

type sessionRef struct {
	id    string
	state session.State
}

// requireSession loads the caller's session or sends them to the upload
// form.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, st, ok := s.sessions.FromRequest(r)
		if !ok {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, sessionRef{id: id, state: st})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) sessionRef {
	ref, _ := r.Context().Value(ctxKey{}).(sessionRef)
	return ref
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("web: request",
			zap.String("component", "web"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
