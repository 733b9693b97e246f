package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/response-map/internal/config"
	"github.com/sells-group/response-map/internal/export"
	"github.com/sells-group/response-map/internal/session"
	"github.com/sells-group/response-map/internal/tiles"
	"github.com/sells-group/response-map/internal/web"
)

var servePort int

// sweepInterval is how often idle sessions are evicted.
const sweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		sessions := session.NewStore(cfg.Session.MaxSessions, cfg.Session.TTL())
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildServer(cfg, sessions).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		g.Go(func() error {
			sweepSessions(gctx, sessions, sweepInterval)
			return nil
		})

		return g.Wait()
	},
}

// buildServer wires the web surface from configuration. PNG export is
// disabled when the Chromium binary cannot be found.
func buildServer(c *config.Config, sessions *session.Store) *web.Server {
	var raster export.Rasterizer
	if path, err := exec.LookPath(c.Export.ChromiumPath); err == nil {
		raster = export.NewChromium(export.ChromiumOptions{
			BinPath: path,
			Width:   c.Export.Width,
			Height:  c.Export.Height,
			Settle:  time.Duration(c.Export.SettleSeconds) * time.Second,
			Timeout: time.Duration(c.Export.TimeoutSeconds) * time.Second,
		})
	} else {
		zap.L().Warn("chromium not found, PNG export disabled",
			zap.String("chromium_path", c.Export.ChromiumPath),
		)
	}

	var (
		proxy *tiles.Proxy
		cache *tiles.Cache
	)
	if c.Tiles.ProxyEnabled {
		cache = tiles.NewCache(c.Tiles.CacheEntries, time.Duration(c.Tiles.CacheTTLMinutes)*time.Minute)
		proxy = tiles.NewProxy(tiles.Options{
			BaseURL:       c.Tiles.UpstreamURL,
			UserAgent:     "response-map/1.0",
			RatePerSecond: c.Tiles.RatePerSecond,
		}, cache)
		zap.L().Info("tile proxy enabled", zap.String("upstream", c.Tiles.UpstreamURL))
	}

	return web.New(web.Options{
		MaxUploadBytes: int64(c.Server.MaxUploadMB) << 20,
		SheetName:      c.Data.SheetName,
		Parse:          parseOptions(c),
		Map:            mapOptions(c),
		RasterTimeout:  time.Duration(c.Export.TimeoutSeconds) * time.Second,
	}, sessions, raster, proxy, cache)
}

// sweepSessions evicts idle sessions until ctx is done.
func sweepSessions(ctx context.Context, sessions *session.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(); n > 0 {
				zap.L().Debug("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
