package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrRasterize marks a failed PNG snapshot. Other exports stay available.
var ErrRasterize = eris.New("map snapshot failed")

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Rasterizer turns a standalone map page into a PNG.
type Rasterizer interface {
	Rasterize(ctx context.Context, page []byte) ([]byte, error)
}

// ChromiumOptions configures headless Chromium snapshots.
type ChromiumOptions struct {
	BinPath string
	Width   int
	Height  int
	Settle  time.Duration // virtual time given to tiles and scripts
	Timeout time.Duration // wall clock limit for the whole run
}

// Chromium rasterizes pages with a headless Chromium binary.
type Chromium struct {
	opts ChromiumOptions
}

// NewChromium creates a Chromium rasterizer. If BinPath is empty,
// "chromium" is used.
func NewChromium(opts ChromiumOptions) *Chromium {
	if opts.BinPath == "" {
		opts.BinPath = "chromium"
	}
	if opts.Width <= 0 {
		opts.Width = 1200
	}
	if opts.Height <= 0 {
		opts.Height = 600
	}
	return &Chromium{opts: opts}
}

// Rasterize writes page to a temp file and screenshots it once. There is no
// retry.
func (c *Chromium) Rasterize(ctx context.Context, page []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "response-map-png-*")
	if err != nil {
		return nil, eris.Wrap(err, "export: create temp dir")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	htmlPath := filepath.Join(dir, "map.html")
	pngPath := filepath.Join(dir, "map.png")
	if err := os.WriteFile(htmlPath, page, 0o600); err != nil {
		return nil, eris.Wrap(err, "export: write page")
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.opts.BinPath, c.args(htmlPath, pngPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// chromium forks helpers that can outlive a killed parent
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(ErrRasterize, "export: %s failed: %v: %s", c.opts.BinPath, err, stderr.String())
	}

	img, err := os.ReadFile(pngPath)
	if err != nil {
		return nil, eris.Wrapf(ErrRasterize, "export: %s wrote no screenshot: %s", c.opts.BinPath, stderr.String())
	}
	if !bytes.HasPrefix(img, pngSignature) {
		return nil, eris.Wrapf(ErrRasterize, "export: %s output is not a PNG", c.opts.BinPath)
	}

	zap.L().Info("export: rasterized map",
		zap.String("component", "export"),
		zap.Int("bytes", len(img)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return img, nil
}

func (c *Chromium) args(htmlPath, pngPath string) []string {
	return []string{
		"--headless",
		"--disable-gpu",
		"--no-sandbox",
		"--hide-scrollbars",
		fmt.Sprintf("--window-size=%d,%d", c.opts.Width, c.opts.Height),
		fmt.Sprintf("--virtual-time-budget=%d", c.opts.Settle.Milliseconds()),
		"--screenshot=" + pngPath,
		"file://" + htmlPath,
	}
}
