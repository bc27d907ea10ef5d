package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/modreg/internal/cache"
)

const (
	defaultListenAddr  = ":8080"
	defaultDBPath      = "modreg.db"
	defaultManifest    = "modules.yaml"
	defaultCacheEngine = cache.EngineMemory
	defaultCacheTTL    = time.Hour
	defaultCachePrefix = "module_settings"

	envListenAddr     = "MODREG_LISTEN_ADDR"
	envDBPath         = "MODREG_DB_PATH"
	envLogLevel       = "MODREG_LOG_LEVEL"
	envManifest       = "MODREG_MANIFEST"
	envCacheEngine    = "MODREG_CACHE_ENGINE"
	envCacheTTL       = "MODREG_CACHE_TTL"
	envCachePrefix    = "MODREG_CACHE_PREFIX"
	envCacheMaxItems  = "MODREG_CACHE_MAX_ITEMS"
	envRedisURL       = "MODREG_REDIS_URL"
	envAllowInstall   = "MODREG_ALLOW_INSTALL"
	envAllowUninstall = "MODREG_ALLOW_UNINSTALL"
	envAutoSync       = "MODREG_AUTO_SYNC"
	envModulesEnabled = "MODREG_MODULES_ENABLED"
	envUseDatabase    = "MODREG_USE_DATABASE"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	Manifest   string

	CacheEngine   string
	CacheTTL      time.Duration
	CachePrefix   string
	CacheMaxItems int
	RedisURL      string

	// AllowInstall and AllowUninstall gate the management surfaces.
	AllowInstall   bool
	AllowUninstall bool
	// AutoSync reconciles the manifest into the store at startup and
	// whenever the manifest file changes.
	AutoSync       bool

	// ModulesEnabled switches module loading on or off as a whole.
	ModulesEnabled bool
	// UseDatabase selects the registry as the loader's source. When false,
	// modules are loaded straight from the manifest.
	UseDatabase    bool
}

// Load reads configuration from environment variables with sensible defaults.
// Unparseable values fall back to their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:     defaultListenAddr,
		DBPath:         defaultDBPath,
		LogLevel:       slog.LevelInfo,
		Manifest:       defaultManifest,
		CacheEngine:    defaultCacheEngine,
		CacheTTL:       defaultCacheTTL,
		CachePrefix:    defaultCachePrefix,
		AllowInstall:   true,
		AllowUninstall: true,
		AutoSync:       true,
		ModulesEnabled: true,
		UseDatabase:    true,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envManifest); v != "" {
		cfg.Manifest = v
	}
	if v := os.Getenv(envCacheEngine); v != "" {
		cfg.CacheEngine = strings.ToLower(v)
	}
	if v := os.Getenv(envCacheTTL); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.CacheTTL = d
		}
	}
	if v, ok := os.LookupEnv(envCachePrefix); ok {
		cfg.CachePrefix = v
	}
	if v := os.Getenv(envCacheMaxItems); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv(envRedisURL); v != "" {
		cfg.RedisURL = v
	}
	cfg.AllowInstall = envBool(envAllowInstall, cfg.AllowInstall)
	cfg.AllowUninstall = envBool(envAllowUninstall, cfg.AllowUninstall)
	cfg.AutoSync = envBool(envAutoSync, cfg.AutoSync)
	cfg.ModulesEnabled = envBool(envModulesEnabled, cfg.ModulesEnabled)
	cfg.UseDatabase = envBool(envUseDatabase, cfg.UseDatabase)

	return cfg
}

// CacheOptions returns the options for opening the configured cache engine.
func (c Config) CacheOptions() cache.Options {
	return cache.Options{
		Engine:   c.CacheEngine,
		Prefix:   c.CachePrefix,
		MaxItems: c.CacheMaxItems,
		RedisURL: c.RedisURL,
	}
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
