package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"imgresize/internal/metrics"
	"imgresize/internal/resizer"
)

// FileCache keeps derivatives as flat files in cacheDir, named by BuildKey.
// Entries are never expired or revalidated against their source.
type FileCache struct {
	cacheDir string
	resizer  resizer.Resizer
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// in-flight resizes keyed by cache path
	group singleflight.Group
}

func NewFileCache(cacheDir string, r resizer.Resizer, m *metrics.Metrics, logger *zap.Logger) (*FileCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{
		cacheDir: cacheDir,
		resizer:  r,
		metrics:  m,
		logger:   logger,
	}, nil
}

func (c *FileCache) Path(key string) string {
	return filepath.Join(c.cacheDir, key)
}

func (c *FileCache) GetOrCreate(ctx context.Context, sourcePath, cachePath string, width, height int) (*Derivative, error) {
	if fileExists(cachePath) {
		c.metrics.CacheHit()
		return &Derivative{Path: cachePath, Hit: true}, nil
	}
	c.metrics.CacheMiss()

	// The shared resize must not die with whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(cachePath, func() (interface{}, error) {
		// A previous flight may have finished since the check above.
		if fileExists(cachePath) {
			return nil, nil
		}
		return nil, c.create(flightCtx, sourcePath, cachePath, width, height)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return &Derivative{Path: cachePath}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrProcessing, ctx.Err())
	}
}

// create resizes into a temp file and renames it over cachePath, so readers
// only ever see complete derivatives.
func (c *FileCache) create(ctx context.Context, sourcePath, cachePath string, width, height int) error {
	tmpPath, err := createTemp(cachePath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	start := time.Now()
	err = resize(ctx, c.resizer, sourcePath, tmpPath, width, height)
	c.metrics.ObserveResize(time.Since(start), err)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	if err := os.Rename(tmpPath, cachePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to store derivative: %w", ErrProcessing, err)
	}

	c.logger.Debug("Derivative created",
		zap.String("source", sourcePath),
		zap.String("path", cachePath),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
