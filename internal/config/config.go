package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            int
	ImagesDir       string
	CacheDir        string
	CacheType       string
	Resizer         string
	ResizeTimeout   time.Duration
	MaxDimension    int
	VipsMaxCacheMB  int
	VipsConcurrency int
	WarmupSizes     []Size
	WarmupWorkers   int
	MetricsEnabled  bool
	LogLevel        string
	AllowedOrigin   string
}

// Size is a width x height pair, as used by WARMUP_SIZES.
type Size struct {
	Width  int
	Height int
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnvInt("PORT", 8000),
		ImagesDir:       getEnv("IMAGES_DIR", "./images"),
		CacheDir:        getEnv("CACHE_DIR", "./cache"),
		CacheType:       getEnv("CACHE", "file"),
		Resizer:         getEnv("RESIZER", "vips"),
		ResizeTimeout:   getEnvDuration("RESIZE_TIMEOUT", 30*time.Second),
		MaxDimension:    getEnvInt("MAX_DIMENSION", 5000),
		VipsMaxCacheMB:  getEnvInt("VIPS_MAX_CACHE_MB", 256),
		VipsConcurrency: getEnvInt("VIPS_CONCURRENCY", 1),
		WarmupWorkers:   getEnvInt("WARMUP_WORKERS", 1),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		AllowedOrigin:   getEnv("ALLOWED_ORIGIN", ""),
	}

	// Malformed entries are dropped; warmup is best effort.
	cfg.WarmupSizes, _ = ParseSizes(getEnv("WARMUP_SIZES", ""))

	return cfg
}

// ParseSizes parses a comma separated list of WxH entries. Valid entries are
// returned even when others fail to parse.
func ParseSizes(value string) ([]Size, error) {
	var sizes []Size
	var bad []string

	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		w, h, ok := strings.Cut(strings.ToLower(part), "x")
		if !ok {
			bad = append(bad, part)
			continue
		}
		width, errW := strconv.Atoi(w)
		height, errH := strconv.Atoi(h)
		if errW != nil || errH != nil || width <= 0 || height <= 0 {
			bad = append(bad, part)
			continue
		}
		sizes = append(sizes, Size{Width: width, Height: height})
	}

	if len(bad) > 0 {
		return sizes, fmt.Errorf("invalid sizes: %s", strings.Join(bad, ", "))
	}
	return sizes, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
