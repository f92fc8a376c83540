package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNoopCacheResizesEveryTime(t *testing.T) {
	dir := t.TempDir()
	r := &countingResizer{}
	c := NewNoopCache(dir, r, nil, zap.NewNop())
	path := c.Path("test_10x10.jpg")
	assert.Equal(t, filepath.Join(dir, "test_10x10.jpg"), path)

	for i := 0; i < 2; i++ {
		d, err := c.GetOrCreate(context.Background(), "src.jpg", path, 10, 10)
		require.NoError(t, err)
		assert.False(t, d.Hit)
		assert.NotEqual(t, path, d.Path)
		assert.Equal(t, ".jpg", filepath.Ext(d.Path))

		data, err := os.ReadFile(d.Path)
		require.NoError(t, err)
		assert.Equal(t, "resized", string(data))

		require.NoError(t, d.Close())
		assert.NoFileExists(t, d.Path)
	}

	assert.Equal(t, int32(2), r.calls.Load())
	assert.NoFileExists(t, path)
}

func TestNoopCacheFailure(t *testing.T) {
	dir := t.TempDir()
	c := NewNoopCache(dir, &countingResizer{err: errors.New("nope")}, nil, zap.NewNop())

	_, err := c.GetOrCreate(context.Background(), "src.jpg", filepath.Join(dir, "x_1x1.jpg"), 1, 1)
	assert.ErrorIs(t, err, ErrProcessing)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNoopCacheCallerGivesUp(t *testing.T) {
	dir := t.TempDir()
	r := &countingResizer{gate: make(chan struct{})}
	c := NewNoopCache(dir, r, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.GetOrCreate(ctx, "src.jpg", c.Path("slow_10x10.jpg"), 10, 10)
	assert.ErrorIs(t, err, ErrProcessing)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "caller must not wait for the resize")

	// the abandoned temp output is cleaned up once the resize returns
	close(r.gate)
	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		return err == nil && len(entries) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestNoopCacheResizerPanicBecomesError(t *testing.T) {
	dir := t.TempDir()
	c := NewNoopCache(dir, &countingResizer{panicWith: "decoder bug"}, nil, zap.NewNop())

	_, err := c.GetOrCreate(context.Background(), "src.jpg", c.Path("x_1x1.jpg"), 1, 1)
	assert.ErrorIs(t, err, ErrProcessing)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewCache(t *testing.T) {
	log := zap.NewNop()

	c, err := NewCache("file", filepath.Join(t.TempDir(), "c1"), &countingResizer{}, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &FileCache{}, c)

	dir := filepath.Join(t.TempDir(), "c2")
	c, err = NewCache("disabled", dir, &countingResizer{}, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &NoopCache{}, c)
	assert.DirExists(t, dir)

	_, err = NewCache("memcached", t.TempDir(), &countingResizer{}, nil, log)
	assert.ErrorContains(t, err, "unknown cache type")
}
