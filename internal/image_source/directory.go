package image_source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("image file not found")

var extensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

type ImageInfo struct {
	Filename string    `json:"filename"`
	Bytes    int64     `json:"bytes"`
	ModTime  time.Time `json:"mod_time"`
}

// Directory is the read-only directory holding the original images.
type Directory struct {
	dir    string
	logger *zap.Logger
}

func New(dir string, logger *zap.Logger) *Directory {
	return &Directory{
		dir:    dir,
		logger: logger,
	}
}

func (d *Directory) Dir() string {
	return d.dir
}

// Sanitize reduces an untrusted filename to its last path element so it can
// never address anything outside the directory.
func Sanitize(filename string) string {
	// Treat backslashes as separators too, regardless of platform.
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch base {
	case ".", "..", "/":
		return ""
	}
	return base
}

// Resolve returns the path of the source image named by filename, after
// sanitizing it. A missing file or a directory yields ErrNotFound.
func (d *Directory) Resolve(filename string) (string, error) {
	name := Sanitize(filename)
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrNotFound, filename)
	}

	path := filepath.Join(d.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn("Error getting file info", zap.String("path", path), zap.Error(err))
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return path, nil
}

// List returns the images in the directory with a supported extension,
// sorted by filename.
func (d *Directory) List() ([]ImageInfo, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read images directory: %w", err)
	}

	images := []ImageInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !extensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			d.logger.Warn("Error getting file info", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}

		images = append(images, ImageInfo{
			Filename: entry.Name(),
			Bytes:    info.Size(),
			ModTime:  info.ModTime(),
		})
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Filename < images[j].Filename
	})

	return images, nil
}
