// Package config resolves FindIt's process-wide configuration from
// environment variables, following the teacher's LoadConfig banner-and-log
// pattern (internal/startup in the teacher repo).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"findit/internal/logging"
	"findit/internal/mediatypes"
)

// Config holds process-wide configuration for the indexing pipeline and
// search engine. Per-folder roots are supplied at call time (registered by
// the user), not here.
type Config struct {
	// AppSupportDir is the per-user application support root, e.g.
	// "<app-support>/FindIt". The global DB, vector indices, and SRT
	// sidecar fallback directory all live under it.
	AppSupportDir string

	PerformanceMode mediatypes.PerformanceMode

	// Rate limiter defaults (C7), overridable per-provider by callers.
	RateLimitMaxRequests   int
	RateLimitWindowSeconds int
	InitialBackoffSeconds  float64
	MaxBackoffSeconds      float64
	BackoffMultiplier      float64

	// OrphanRetentionDays is the default retention window before
	// cleanup_expired hard-deletes orphaned videos (C6).
	OrphanRetentionDays int

	// MaxFramesPerScene / ThumbnailShortEdge parameterize the Keyframe
	// Extractor (C2).
	MaxFramesPerScene  int
	ThumbnailShortEdge int

	LogLevel string
}

// Derived, resolved at Load() time.
func (c *Config) GlobalDBPath() string {
	return filepath.Join(c.AppSupportDir, "search.sqlite")
}

func (c *Config) ClipVectorIndexPath() string {
	return filepath.Join(c.AppSupportDir, "vectors", "clip.idx")
}

func (c *Config) TextVectorIndexPath() string {
	return filepath.Join(c.AppSupportDir, "vectors", "text.idx")
}

func (c *Config) SRTSidecarDir() string {
	return filepath.Join(c.AppSupportDir, "srt")
}

// Load resolves configuration from the environment, logging each resolved
// value the way the teacher's LoadConfig does.
func Load() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("FINDIT CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	appSupportDir := getEnv("FINDIT_APP_SUPPORT_DIR", defaultAppSupportDir())
	perfMode := mediatypes.PerformanceMode(getEnv("FINDIT_PERFORMANCE_MODE", string(mediatypes.PerformanceBalanced)))
	switch perfMode {
	case mediatypes.PerformanceFullSpeed, mediatypes.PerformanceBalanced, mediatypes.PerformanceBackground:
	default:
		logging.Warn("  Unknown FINDIT_PERFORMANCE_MODE %q, defaulting to balanced", perfMode)
		perfMode = mediatypes.PerformanceBalanced
	}

	cfg := &Config{
		AppSupportDir:          appSupportDir,
		PerformanceMode:        perfMode,
		RateLimitMaxRequests:   getEnvInt("FINDIT_RATE_LIMIT_MAX_REQUESTS", 60),
		RateLimitWindowSeconds: getEnvInt("FINDIT_RATE_LIMIT_WINDOW_SECONDS", 60),
		InitialBackoffSeconds:  getEnvFloat("FINDIT_INITIAL_BACKOFF_SECONDS", 2),
		MaxBackoffSeconds:      getEnvFloat("FINDIT_MAX_BACKOFF_SECONDS", 60),
		BackoffMultiplier:      getEnvFloat("FINDIT_BACKOFF_MULTIPLIER", 2),
		OrphanRetentionDays:    getEnvInt("FINDIT_ORPHAN_RETENTION_DAYS", 30),
		MaxFramesPerScene:      getEnvInt("FINDIT_MAX_FRAMES_PER_SCENE", 3),
		ThumbnailShortEdge:     getEnvInt("FINDIT_THUMBNAIL_SHORT_EDGE", 320),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}

	var err error
	cfg.AppSupportDir, err = filepath.Abs(cfg.AppSupportDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve app support directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(cfg.AppSupportDir, "vectors"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vectors directory: %w", err)
	}
	if err := os.MkdirAll(cfg.SRTSidecarDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create srt sidecar directory: %w", err)
	}

	logging.Info("  App support dir:       %s", cfg.AppSupportDir)
	logging.Info("  Performance mode:      %s", cfg.PerformanceMode)
	logging.Info("  Rate limit:            %d req / %ds", cfg.RateLimitMaxRequests, cfg.RateLimitWindowSeconds)
	logging.Info("  Backoff:               initial=%.1fs max=%.1fs mult=%.1f", cfg.InitialBackoffSeconds, cfg.MaxBackoffSeconds, cfg.BackoffMultiplier)
	logging.Info("  Orphan retention:      %d days", cfg.OrphanRetentionDays)

	return cfg, nil
}

func defaultAppSupportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "FindIt")
	}
	return filepath.Join(home, "Library", "Application Support", "FindIt")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
