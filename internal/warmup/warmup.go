// Package warmup pre-generates derivatives for every source image at a set of
// configured sizes, so the first requests for them are cache hits.
package warmup

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"imgresize/internal/cache"
	"imgresize/internal/config"
	"imgresize/internal/image_source"
)

type Result struct {
	Created int
	Cached  int
	Failed  int
}

// Run creates the derivative of each listed image at each size, with at most
// workerLimit resizes at once. Individual failures are logged and counted.
func Run(ctx context.Context, sizes []config.Size, workerLimit int, images *image_source.Directory, derivatives cache.Cache, log *zap.Logger) Result {
	var result Result
	if len(sizes) == 0 {
		return result
	}

	list, err := images.List()
	if err != nil {
		log.Warn("Warmup skipped", zap.Error(err))
		return result
	}
	if len(list) == 0 {
		return result
	}

	log.Info("Starting warmup", zap.Int("sizes", len(sizes)), zap.Int("images", len(list)))

	if workerLimit <= 0 {
		workerLimit = 1
	}

	var created, cached, failed atomic.Int64
	workerChan := make(chan struct{}, workerLimit)
	var wg sync.WaitGroup

loop:
	for _, img := range list {
		for _, size := range sizes {
			if ctx.Err() != nil {
				break loop
			}
			select {
			case <-ctx.Done():
				break loop
			case workerChan <- struct{}{}: // Acquire worker slot
			}
			wg.Add(1)

			go func(filename string, size config.Size) {
				defer wg.Done()
				defer func() { <-workerChan }() // Release worker slot

				sourcePath := filepath.Join(images.Dir(), filename)
				key := cache.BuildKey(filename, size.Width, size.Height)

				d, err := derivatives.GetOrCreate(ctx, sourcePath, derivatives.Path(key), size.Width, size.Height)
				if err != nil {
					failed.Add(1)
					log.Debug("Warmup resize failed", zap.String("image", filename), zap.Int("width", size.Width), zap.Int("height", size.Height), zap.Error(err))
					return
				}
				if d.Hit {
					cached.Add(1)
				} else {
					created.Add(1)
				}
				d.Close()
			}(img.Filename, size)
		}
	}

	wg.Wait()

	result = Result{Created: int(created.Load()), Cached: int(cached.Load()), Failed: int(failed.Load())}
	log.Info("Warmup completed",
		zap.Int("created", result.Created),
		zap.Int("cached", result.Cached),
		zap.Int("failed", result.Failed),
	)
	return result
}
