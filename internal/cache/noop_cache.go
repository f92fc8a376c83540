package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"imgresize/internal/metrics"
	"imgresize/internal/resizer"
)

// NoopCache resizes on every request. Each derivative is a temp file next to
// cachePath that is removed when the Derivative is closed.
type NoopCache struct {
	cacheDir string
	resizer  resizer.Resizer
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewNoopCache(cacheDir string, r resizer.Resizer, m *metrics.Metrics, logger *zap.Logger) *NoopCache {
	return &NoopCache{
		cacheDir: cacheDir,
		resizer:  r,
		metrics:  m,
		logger:   logger,
	}
}

func (c *NoopCache) Path(key string) string {
	return filepath.Join(c.cacheDir, key)
}

func (c *NoopCache) GetOrCreate(ctx context.Context, sourcePath, cachePath string, width, height int) (*Derivative, error) {
	c.metrics.CacheMiss()

	tmpPath, err := createTemp(cachePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	// Resizers only look at ctx between stages, so wait on the caller
	// separately. A caller that gives up leaves the cleanup to the resize.
	done := make(chan error, 1)
	go func() {
		start := time.Now()
		err := resize(ctx, c.resizer, sourcePath, tmpPath, width, height)
		c.metrics.ObserveResize(time.Since(start), err)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			os.Remove(tmpPath)
			return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
		}
	case <-ctx.Done():
		go func() {
			<-done
			os.Remove(tmpPath)
		}()
		return nil, fmt.Errorf("%w: %w", ErrProcessing, ctx.Err())
	}

	return &Derivative{
		Path: tmpPath,
		release: func() error {
			return os.Remove(tmpPath)
		},
	}, nil
}
