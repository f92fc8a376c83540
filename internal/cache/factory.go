package cache

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"imgresize/internal/metrics"
	"imgresize/internal/resizer"
)

// NewCache creates a cache instance based on the cache type. The cache
// directory is created in both modes since disabled mode still stages
// derivatives there.
func NewCache(cacheType, cacheDir string, r resizer.Resizer, m *metrics.Metrics, log *zap.Logger) (Cache, error) {
	switch cacheType {
	case "file", "":
		log.Info("Using file cache", zap.String("cache_dir", cacheDir))
		return NewFileCache(cacheDir, r, m, log)
	case "disabled":
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		log.Info("Cache disabled")
		return NewNoopCache(cacheDir, r, m, log), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: file, disabled)", cacheType)
	}
}
