package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imgresize/internal/resizer"
)

// ErrProcessing wraps every failure to produce a derivative.
var ErrProcessing = errors.New("image processing failed")

type Cache interface {
	// Path returns where the derivative named key is produced.
	Path(key string) string
	// GetOrCreate returns the derivative of sourcePath at width x height,
	// producing it at cachePath first if needed. The caller must Close the
	// returned Derivative once it has been served.
	GetOrCreate(ctx context.Context, sourcePath, cachePath string, width, height int) (*Derivative, error)
}

// Derivative is a resized image on disk.
type Derivative struct {
	Path string
	// Hit reports that the file already existed and no resize ran.
	Hit bool

	release func() error
}

func (d *Derivative) Close() error {
	if d.release == nil {
		return nil
	}
	return d.release()
}

// BuildKey derives the cache filename for originalFilename resized to
// width x height: "{stem}_{width}x{height}{ext}", split at the last dot.
// A leading dot does not start an extension, so ".hidden" keeps it in the stem.
func BuildKey(originalFilename string, width, height int) string {
	stem, ext := originalFilename, ""
	if i := strings.LastIndex(originalFilename, "."); i > 0 {
		stem, ext = originalFilename[:i], originalFilename[i:]
	}
	return fmt.Sprintf("%s_%dx%d%s", stem, width, height, ext)
}

// createTemp reserves a temp file next to cachePath. The name ends in the
// cache key so resizers can still infer the output format from it.
func createTemp(cachePath string) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(cachePath), ".tmp-*-"+filepath.Base(cachePath))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(name, 0644); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to chmod temp file: %w", err)
	}
	return name, nil
}

// resize runs r and turns a panic inside it into an error, since resizes run
// on goroutines no request handler can recover.
func resize(ctx context.Context, r resizer.Resizer, sourcePath, dstPath string, width, height int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resizer panic: %v", p)
		}
	}()
	return r.Resize(ctx, sourcePath, dstPath, width, height)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
