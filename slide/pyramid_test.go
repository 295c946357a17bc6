package slide

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagePyramidLevels(t *testing.T) {
	img := uniformRGBA(256, 128, 200)

	t.Run("explicit level count", func(t *testing.T) {
		p := NewImagePyramid(img, 3)
		require.Equal(t, 3, p.Levels())

		wantDims := [][2]int{{256, 128}, {128, 64}, {64, 32}}
		for level, want := range wantDims {
			w, h, err := p.Dimensions(level)
			require.NoError(t, err)
			assert.Equal(t, want[0], w, "level %d width", level)
			assert.Equal(t, want[1], h, "level %d height", level)
		}
	})

	t.Run("automatic levels stop at the minimum edge", func(t *testing.T) {
		p := NewImagePyramid(uniformRGBA(4096, 2048, 200), 0)
		w, h, err := p.Dimensions(p.Levels() - 1)
		require.NoError(t, err)
		long := w
		if h > long {
			long = h
		}
		assert.LessOrEqual(t, long, 1024)
		assert.GreaterOrEqual(t, p.Levels(), 3)
	})

	t.Run("level out of range", func(t *testing.T) {
		p := NewImagePyramid(img, 2)
		_, _, err := p.Dimensions(2)
		assert.Error(t, err)
		_, _, err = p.Dimensions(-1)
		assert.Error(t, err)
	})
}

func TestImagePyramidReadWindow(t *testing.T) {
	img := uniformRGBA(64, 64, 200)
	fillRect(img, 16, 16, 8, 8, 50)
	p := NewImagePyramid(img, 1)

	t.Run("window pixels match the level", func(t *testing.T) {
		win, err := p.ReadWindow(0, 16, 16, 8, 8)
		require.NoError(t, err)
		assert.Equal(t, 8, win.Bounds().Dx())
		assert.Equal(t, 8, win.Bounds().Dy())
		assert.Equal(t, uint8(50), win.Pix[0])

		full, err := p.ReadWindow(0, 0, 0, 64, 64)
		require.NoError(t, err)
		assert.Equal(t, uint8(200), full.Pix[0])
	})

	t.Run("out of bounds window", func(t *testing.T) {
		_, err := p.ReadWindow(0, 60, 60, 8, 8)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDecode))
	})

	t.Run("window copy does not alias the level", func(t *testing.T) {
		win, err := p.ReadWindow(0, 0, 0, 4, 4)
		require.NoError(t, err)
		win.Pix[0] = 0
		again, err := p.ReadWindow(0, 0, 0, 4, 4)
		require.NoError(t, err)
		assert.Equal(t, uint8(200), again.Pix[0])
	})

	t.Run("reads after close fail", func(t *testing.T) {
		q := NewImagePyramid(uniformRGBA(8, 8, 10), 1)
		require.NoError(t, q.Close())
		_, err := q.ReadWindow(0, 0, 0, 4, 4)
		assert.Error(t, err)
	})
}

func TestOpenImagePyramid(t *testing.T) {
	t.Run("png round trip", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "slide.png")
		require.NoError(t, imaging.Save(imaging.Clone(uniformRGBA(32, 16, 120)), path))

		p, err := OpenImagePyramid(path)
		require.NoError(t, err)
		defer p.Close()

		w, h, err := p.Dimensions(0)
		require.NoError(t, err)
		assert.Equal(t, 32, w)
		assert.Equal(t, 16, h)
	})

	t.Run("missing file is a decode error", func(t *testing.T) {
		_, err := OpenImagePyramid("does-not-exist.png")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDecode))
	})
}

func TestDetectionLevel(t *testing.T) {
	p := NewImagePyramid(uniformRGBA(256, 128, 200), 4)

	t.Run("picks the smallest level that fits", func(t *testing.T) {
		level, err := DetectionLevel(p, 64)
		require.NoError(t, err)
		assert.Equal(t, 2, level)
	})

	t.Run("base level when everything fits", func(t *testing.T) {
		level, err := DetectionLevel(p, 1000)
		require.NoError(t, err)
		assert.Equal(t, 0, level)
	})

	t.Run("capped at the coarsest level", func(t *testing.T) {
		level, err := DetectionLevel(p, 4)
		require.NoError(t, err)
		assert.Equal(t, 3, level)
	})

	t.Run("non-positive target", func(t *testing.T) {
		_, err := DetectionLevel(p, 0)
		assert.Error(t, err)
	})
}
