package slide

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardizeTransform(t *testing.T) {
	trans := NewImageNetTransform()

	t.Run("white pixel", func(t *testing.T) {
		tensor, err := trans.Apply(uniformRGBA(2, 2, 255))
		require.NoError(t, err)
		assert.Equal(t, 3, tensor.C)
		assert.Equal(t, 2, tensor.H)
		assert.Equal(t, 2, tensor.W)
		assert.InDelta(t, (1-0.485)/0.229, tensor.At(0, 0, 0), 1e-5)
		assert.InDelta(t, (1-0.456)/0.224, tensor.At(1, 0, 0), 1e-5)
		assert.InDelta(t, (1-0.406)/0.225, tensor.At(2, 1, 1), 1e-5)
	})

	t.Run("black pixel", func(t *testing.T) {
		tensor, err := trans.Apply(uniformRGBA(1, 1, 0))
		require.NoError(t, err)
		assert.InDelta(t, -0.485/0.229, tensor.At(0, 0, 0), 1e-5)
	})

	t.Run("deterministic", func(t *testing.T) {
		img := uniformRGBA(4, 4, 137)
		a, err := trans.Apply(img)
		require.NoError(t, err)
		b, err := trans.Apply(img)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestStackBatch(t *testing.T) {
	t.Run("stacks matching shapes", func(t *testing.T) {
		a := NewTensor(3, 2, 2)
		b := NewTensor(3, 2, 2)
		a.Data[0] = 1
		b.Data[0] = 2

		batch, err := StackBatch([]Tensor{a, b})
		require.NoError(t, err)
		assert.Equal(t, 2, batch.N)
		assert.Equal(t, float32(1), batch.Data[0])
		assert.Equal(t, float32(2), batch.Data[12])
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := StackBatch([]Tensor{NewTensor(3, 2, 2), NewTensor(3, 4, 4)})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := StackBatch(nil)
		assert.ErrorIs(t, err, ErrInference)
	})
}

func TestArgMaxFloat(t *testing.T) {
	assert.Equal(t, 2, ArgMaxFloat([]float32{0.1, 0.2, 0.6, 0.1}))
	assert.Equal(t, 0, ArgMaxFloat([]float32{0.9, 0.05, 0.05, 0}))
	// Ties resolve to the lowest index.
	assert.Equal(t, 1, ArgMaxFloat([]float32{0.1, 0.4, 0.4, 0.1}))
	assert.Equal(t, 0, ArgMaxFloat([]float32{0.25, 0.25, 0.25, 0.25}))
}
