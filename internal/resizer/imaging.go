package resizer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// compression quality of resized jpegs
const jpegQuality = 90

// Imaging is a pure Go Resizer backed by github.com/disintegration/imaging.
// It needs no system libraries, at the cost of speed on large sources.
type Imaging struct {
	Filter imaging.ResampleFilter
}

func NewImaging() *Imaging {
	return &Imaging{Filter: imaging.Lanczos}
}

func (r *Imaging) Resize(ctx context.Context, srcPath, dstPath string, width, height int) error {
	if err := Validate(srcPath, width, height); err != nil {
		return err
	}
	if _, err := imaging.FormatFromFilename(dstPath); err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(dstPath))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	dst := imaging.Fill(src, width, height, imaging.Center, r.Filter)

	// Decoding and resampling are not interruptible; skip the write if the
	// caller gave up meanwhile.
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := imaging.Save(dst, dstPath, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
