package image_source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"test.jpg":            "test.jpg",
		"../test.jpg":         "test.jpg",
		"../../etc/passwd":    "passwd",
		"/abs/path/photo.png": "photo.png",
		`..\..\windows\a.jpg`: "a.jpg",
		"sub/dir/":            "dir",
		"..":                  "",
		".":                   "",
		"/":                   "",
		"photo.version1.jpeg": "photo.version1.jpeg",
	}

	for in, want := range tests {
		assert.Equal(t, want, Sanitize(in), "input %q", in)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.jpg"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0755))

	d := New(dir, zap.NewNop())

	path, err := d.Resolve("test.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "test.jpg"), path)

	path, err = d.Resolve("../../somewhere/else/test.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "test.jpg"), path)

	for _, name := range []string{"nonexistent.jpg", "nested.jpg", "..", ""} {
		_, err := d.Resolve(name)
		assert.ErrorIs(t, err, ErrNotFound, "name %q", name)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "notes.txt", "c.WEBP"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0755))

	images, err := New(dir, zap.NewNop()).List()
	require.NoError(t, err)

	var names []string
	for _, img := range images {
		names = append(names, img.Filename)
		assert.Equal(t, int64(4), img.Bytes)
	}
	assert.Equal(t, []string{"a.jpg", "b.png", "c.WEBP"}, names)
}

func TestListMissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), zap.NewNop()).List()
	assert.Error(t, err)
}
