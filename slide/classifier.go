package slide

import (
	"context"
	"fmt"
	"image"
)

// Tensor is a C×H×W float32 pixel tensor in channel-major layout.
type Tensor struct {
	C, H, W int
	Data    []float32
}

// NewTensor allocates a zero tensor of the given shape.
func NewTensor(c, h, w int) Tensor {
	return Tensor{C: c, H: h, W: w, Data: make([]float32, c*h*w)}
}

// At returns the value at (channel, y, x). No bounds checking.
func (t Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// Batch is a B×C×H×W stack of tensors ready for one classifier call.
type Batch struct {
	N, C, H, W int
	Data       []float32
}

// StackBatch concatenates tensors of identical shape into a batch.
func StackBatch(tensors []Tensor) (Batch, error) {
	if len(tensors) == 0 {
		return Batch{}, fmt.Errorf("%w: empty batch", ErrInference)
	}
	first := tensors[0]
	b := Batch{N: len(tensors), C: first.C, H: first.H, W: first.W}
	b.Data = make([]float32, 0, b.N*b.C*b.H*b.W)
	for i, t := range tensors {
		if t.C != b.C || t.H != b.H || t.W != b.W {
			return Batch{}, fmt.Errorf("%w: tensor %d has shape %dx%dx%d, want %dx%dx%d",
				ErrInference, i, t.C, t.H, t.W, b.C, b.H, b.W)
		}
		b.Data = append(b.Data, t.Data...)
	}
	return b, nil
}

// Transform converts a raw tile image to a normalized pixel tensor.
// Implementations must be pure: same image in, same tensor out.
type Transform interface {
	Apply(img *image.RGBA) (Tensor, error)
}

// Classifier maps a batch of pixel tensors to row-stochastic
// per-class probability vectors over NumClasses classes. A single model
// instance must not be called concurrently unless the implementation
// documents otherwise; the predictor serializes calls per slide.
type Classifier interface {
	Predict(ctx context.Context, batch Batch) ([][]float32, error)
}

// StandardizeTransform scales pixels to [0, 1] and standardizes each
// channel with fixed statistics, emitting a 3×H×W tensor.
type StandardizeTransform struct {
	Mean [3]float64
	Std  [3]float64
}

// NewImageNetTransform returns the standardization the patch classifier
// was trained with (ImageNet channel statistics).
func NewImageNetTransform() *StandardizeTransform {
	return &StandardizeTransform{
		Mean: [3]float64{0.485, 0.456, 0.406},
		Std:  [3]float64{0.229, 0.224, 0.225},
	}
}

func (s *StandardizeTransform) Apply(img *image.RGBA) (Tensor, error) {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	if h == 0 || w == 0 {
		return Tensor{}, fmt.Errorf("%w: empty tile image", ErrInference)
	}

	t := NewTensor(3, h, w)
	for y := 0; y < h; y++ {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			off := row + x*4
			for c := 0; c < 3; c++ {
				v := float64(img.Pix[off+c]) / 255
				t.Data[(c*h+y)*w+x] = float32((v - s.Mean[c]) / s.Std[c])
			}
		}
	}
	return t, nil
}

// ArgMaxFloat returns the index of the maximum probability. Ties
// resolve to the lowest index.
func ArgMaxFloat(probs []float32) int {
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return best
}
