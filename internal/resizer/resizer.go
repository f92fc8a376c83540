// Package resizer defines the resize capability the service delegates pixel
// work to, along with the input checks every implementation shares.
package resizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Resizer writes a width x height copy of the image at srcPath to dstPath.
// The source is scaled to cover the box, keeping its aspect ratio, and the
// overflow is cropped evenly from both sides. The output format follows the
// extension of dstPath.
type Resizer interface {
	Resize(ctx context.Context, srcPath, dstPath string, width, height int) error
}

var (
	ErrSourceNotFound    = errors.New("input image not found")
	ErrNotPositive       = errors.New("width and height must be positive numbers")
	ErrNotInteger        = errors.New("width and height must be integers")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Validate checks the preconditions of a resize: the source must be a regular
// file and both dimensions positive.
func Validate(srcPath string, width, height int) error {
	info, err := os.Stat(srcPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, srcPath)
	}
	if width <= 0 || height <= 0 {
		return ErrNotPositive
	}
	return nil
}

// CheckDimension validates a width or height that may not be integral.
// Positivity is checked before integrality.
func CheckDimension(v float64) error {
	if !(v > 0) {
		return ErrNotPositive
	}
	if v != math.Trunc(v) {
		return ErrNotInteger
	}
	return nil
}

// CoverBox returns the size of a srcW x srcH image scaled to cover a
// width x height box with its aspect ratio kept, and the offset of the
// centered width x height crop inside it.
func CoverBox(srcW, srcH, width, height int) (scaledW, scaledH, left, top int) {
	scale := math.Max(float64(width)/float64(srcW), float64(height)/float64(srcH))
	scaledW = max(width, int(math.Round(float64(srcW)*scale)))
	scaledH = max(height, int(math.Round(float64(srcH)*scale)))
	return scaledW, scaledH, (scaledW - width) / 2, (scaledH - height) / 2
}

// Format returns the canonical format name for a file path, or "" when the
// extension is not a supported image format.
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	case ".gif":
		return "gif"
	case ".webp":
		return "webp"
	case ".tif", ".tiff":
		return "tiff"
	case ".bmp":
		return "bmp"
	default:
		return ""
	}
}

// ContentType returns the image media type for a derivative path.
func ContentType(path string) string {
	if format := Format(path); format != "" {
		return "image/" + format
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
