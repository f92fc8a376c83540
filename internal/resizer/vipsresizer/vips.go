// Package vipsresizer implements resizer.Resizer on top of libvips through
// github.com/cshum/vipsgen.
package vipsresizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"imgresize/internal/resizer"
)

type Config struct {
	MaxCacheMB  int
	Concurrency int
}

// Startup initializes libvips and routes its warnings and errors to log.
// The returned func shuts libvips down and must be called once on exit.
func Startup(cfg Config, log *zap.Logger) func() {
	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelWarning)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: cfg.Concurrency,
		MaxCacheMem:      cfg.MaxCacheMB * 1024 * 1024,
		MaxCacheFiles:    0, // derivatives are cached by the service itself
		MaxCacheSize:     0,
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	})

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.MaxCacheMB),
		zap.Int("concurrency", cfg.Concurrency),
	)

	return vips.Shutdown
}

type Resizer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Resizer {
	return &Resizer{logger: logger}
}

func (r *Resizer) Resize(ctx context.Context, srcPath, dstPath string, width, height int) error {
	if err := resizer.Validate(srcPath, width, height); err != nil {
		return err
	}
	format := resizer.Format(dstPath)
	if format == "" || format == "bmp" {
		return fmt.Errorf("%w: %s", resizer.ErrUnsupportedFormat, filepath.Ext(dstPath))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	image, err := loadImage(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer image.Close()

	// Camera orientation first, so the crop below sees the upright image.
	if err := image.Autorot(vips.DefaultAutorotOptions()); err != nil {
		return fmt.Errorf("failed to auto-rotate: %w", err)
	}

	// Scale to cover the box with independent factors that land exactly on
	// the rounded cover size, then keep the centered width x height.
	scaledW, scaledH, left, top := resizer.CoverBox(image.Width(), image.Height(), width, height)

	resizeOpts := vips.DefaultResizeOptions()
	resizeOpts.Kernel = vips.KernelLanczos3
	resizeOpts.Vscale = float64(scaledH) / float64(image.Height())
	if err := image.Resize(float64(scaledW)/float64(image.Width()), resizeOpts); err != nil {
		return fmt.Errorf("failed to resize: %w", err)
	}

	// Rounding inside libvips may leave the image a pixel short of the box.
	cropW, cropH := min(width, image.Width()), min(height, image.Height())
	left, top = min(left, image.Width()-cropW), min(top, image.Height()-cropH)
	if err := image.ExtractArea(left, top, cropW, cropH); err != nil {
		return fmt.Errorf("failed to crop: %w", err)
	}

	data, err := saveImage(image, format)
	if err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.WriteFile(dstPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	r.logger.Debug("vips resize done",
		zap.String("src", srcPath),
		zap.Int("width", image.Width()),
		zap.Int("height", image.Height()),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// loadImage loads an image based on file extension
func loadImage(path string) (*vips.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))

	// Autorot may transpose the image, which sequential access cannot serve.
	access := vips.AccessRandom

	switch ext {
	case ".tif", ".tiff":
		opts := vips.DefaultTiffloadOptions()
		opts.Access = access
		return vips.NewTiffload(path, opts)
	case ".jpg", ".jpeg":
		opts := vips.DefaultJpegloadOptions()
		opts.Access = access
		return vips.NewJpegload(path, opts)
	case ".png":
		opts := vips.DefaultPngloadOptions()
		opts.Access = access
		return vips.NewPngload(path, opts)
	case ".webp":
		opts := vips.DefaultWebploadOptions()
		opts.Access = access
		return vips.NewWebpload(path, opts)
	case ".gif":
		opts := vips.DefaultGifloadOptions()
		opts.Access = access
		return vips.NewGifload(path, opts)
	default:
		return nil, fmt.Errorf("%w: %s", resizer.ErrUnsupportedFormat, ext)
	}
}

func saveImage(image *vips.Image, format string) ([]byte, error) {
	switch format {
	case "jpeg":
		opts := vips.DefaultJpegsaveBufferOptions()
		opts.Q = 82
		opts.Interlace = false
		return image.JpegsaveBuffer(opts)
	case "png":
		return image.PngsaveBuffer(vips.DefaultPngsaveBufferOptions())
	case "webp":
		return image.WebpsaveBuffer(vips.DefaultWebpsaveBufferOptions())
	case "gif":
		return image.GifsaveBuffer(vips.DefaultGifsaveBufferOptions())
	case "tiff":
		return image.TiffsaveBuffer(vips.DefaultTiffsaveBufferOptions())
	default:
		return nil, fmt.Errorf("%w: %s", resizer.ErrUnsupportedFormat, format)
	}
}
