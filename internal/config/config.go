package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Map     MapConfig     `yaml:"map" mapstructure:"map"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Tiles   TilesConfig   `yaml:"tiles" mapstructure:"tiles"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the web server.
type ServerConfig struct {
	Port        int `yaml:"port" mapstructure:"port"`
	MaxUploadMB int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// SessionConfig bounds the in-memory browser sessions.
type SessionConfig struct {
	TTLMinutes  int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxSessions int `yaml:"max_sessions" mapstructure:"max_sessions"`
}

// TTL returns the session lifetime.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// DataConfig controls how uploaded tables are read.
type DataConfig struct {
	DayFirst  bool   `yaml:"day_first" mapstructure:"day_first"`
	SheetName string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// MapConfig holds base map rendering defaults.
type MapConfig struct {
	Zoom            int    `yaml:"zoom" mapstructure:"zoom"`
	TileURL         string `yaml:"tile_url" mapstructure:"tile_url"`
	TileAttribution string `yaml:"tile_attribution" mapstructure:"tile_attribution"`
	ShowLegend      bool   `yaml:"show_legend" mapstructure:"show_legend"`
}

// ExportConfig configures static exports.
type ExportConfig struct {
	ChromiumPath   string `yaml:"chromium_path" mapstructure:"chromium_path"`
	SettleSeconds  int    `yaml:"settle_seconds" mapstructure:"settle_seconds"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Width          int    `yaml:"width" mapstructure:"width"`
	Height         int    `yaml:"height" mapstructure:"height"`
}

// TilesConfig configures the optional basemap tile proxy.
type TilesConfig struct {
	ProxyEnabled    bool    `yaml:"proxy_enabled" mapstructure:"proxy_enabled"`
	UpstreamURL     string  `yaml:"upstream_url" mapstructure:"upstream_url"`
	CacheEntries    int     `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLMinutes int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
	RatePerSecond   float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// DefaultTileURL is the CartoDB Positron basemap.
const DefaultTileURL = "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png"

// DefaultTileAttribution credits the default basemap.
const DefaultTileAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors &copy; <a href="https://carto.com/attributions">CARTO</a>`

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESPONSEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("session.ttl_minutes", 120)
	v.SetDefault("session.max_sessions", 16)
	v.SetDefault("data.day_first", true)
	v.SetDefault("data.sheet_name", "")
	v.SetDefault("map.zoom", 13)
	v.SetDefault("map.tile_url", DefaultTileURL)
	v.SetDefault("map.tile_attribution", DefaultTileAttribution)
	v.SetDefault("map.show_legend", true)
	v.SetDefault("export.chromium_path", "chromium")
	v.SetDefault("export.settle_seconds", 5)
	v.SetDefault("export.timeout_seconds", 60)
	v.SetDefault("export.width", 1200)
	v.SetDefault("export.height", 600)
	v.SetDefault("tiles.proxy_enabled", false)
	v.SetDefault("tiles.upstream_url", "https://a.basemaps.cartocdn.com/light_all")
	v.SetDefault("tiles.cache_entries", 2048)
	v.SetDefault("tiles.cache_ttl_minutes", 60)
	v.SetDefault("tiles.rate_per_second", 8.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings no component can work with. All problems are
// reported together.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Server.MaxUploadMB <= 0 {
		problems = append(problems, "server.max_upload_mb must be > 0")
	}
	if c.Session.MaxSessions <= 0 {
		problems = append(problems, "session.max_sessions must be > 0")
	}
	if c.Session.TTLMinutes <= 0 {
		problems = append(problems, "session.ttl_minutes must be > 0")
	}
	if c.Map.Zoom < 0 || c.Map.Zoom > 22 {
		problems = append(problems, "map.zoom must be between 0 and 22")
	}
	if c.Map.TileURL == "" {
		problems = append(problems, "map.tile_url is required")
	}
	if c.Export.Width <= 0 || c.Export.Height <= 0 {
		problems = append(problems, "export.width and export.height must be > 0")
	}
	if c.Export.SettleSeconds < 0 {
		problems = append(problems, "export.settle_seconds must be >= 0")
	}
	if c.Tiles.ProxyEnabled {
		if c.Tiles.UpstreamURL == "" {
			problems = append(problems, "tiles.upstream_url is required when the proxy is enabled")
		}
		if c.Tiles.RatePerSecond <= 0 {
			problems = append(problems, "tiles.rate_per_second must be > 0")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
