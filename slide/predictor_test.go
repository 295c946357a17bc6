package slide

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClassifier votes every tile into a single class. failAt > 0 makes
// the nth Predict call fail, mimicking a model backend falling over
// mid-slide.
type stubClassifier struct {
	class  int
	failAt int
	calls  int
}

func (s *stubClassifier) Predict(_ context.Context, batch Batch) ([][]float32, error) {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return nil, errors.New("model backend unavailable")
	}
	rows := make([][]float32, batch.N)
	for i := range rows {
		row := make([]float32, NumClasses)
		row[s.class] = 1
		rows[i] = row
	}
	return rows, nil
}

// shortRowClassifier returns fewer rows than tiles submitted.
type shortRowClassifier struct{}

func (shortRowClassifier) Predict(_ context.Context, batch Batch) ([][]float32, error) {
	return make([][]float32, batch.N-1), nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ZoomLevel = 0
	cfg.TileSize = 64
	cfg.BatchSize = 8
	cfg.Workers = 2
	cfg.Foreground.TargetSize = 512
	return cfg
}

func tissueSlide() *ImagePyramid {
	img := uniformRGBA(512, 512, 230)
	fillRect(img, 100, 100, 200, 200, 120)
	return NewImagePyramid(img, 1)
}

func newTestPredictor(classifier Classifier) *SlidePredictor {
	return NewSlidePredictor(testConfig(), classifier, NewImageNetTransform(), zerolog.Nop())
}

func TestSlidePredictor(t *testing.T) {
	ctx := context.Background()

	t.Run("blank slide decides no tissue", func(t *testing.T) {
		pyr := NewImagePyramid(uniformRGBA(512, 512, 200), 1)
		defer pyr.Close()

		p := newTestPredictor(&stubClassifier{class: 1})
		result := p.Predict(ctx, pyr)

		assert.Equal(t, OutcomeNoTissue, result.Outcome)
		assert.Equal(t, FallbackClass, result.Class)
		assert.Zero(t, result.Votes.Total())
		assert.NoError(t, result.Err)
		assert.Equal(t, StateNoTissue, p.State())
	})

	t.Run("tissue slide decides the majority class", func(t *testing.T) {
		pyr := tissueSlide()
		defer pyr.Close()

		p := newTestPredictor(&stubClassifier{class: 2})
		result := p.Predict(ctx, pyr)

		require.Equal(t, OutcomeDecided, result.Outcome)
		assert.Equal(t, 2, result.Class)
		assert.Greater(t, result.Tiles, 0)
		assert.Equal(t, result.Tiles, result.Votes[2])
		assert.Equal(t, result.Tiles, result.Votes.Total())
		assert.Equal(t, StateDecided, p.State())
	})

	t.Run("inference failure falls back with full tile count", func(t *testing.T) {
		pyr := tissueSlide()
		defer pyr.Close()

		p := newTestPredictor(&stubClassifier{class: 2, failAt: 2})
		result := p.Predict(ctx, pyr)

		require.Equal(t, OutcomeFailed, result.Outcome)
		assert.Equal(t, FallbackClass, result.Class)
		assert.Greater(t, result.Tiles, 0)
		assert.Equal(t, result.Tiles, result.Votes[FallbackClass])
		assert.Equal(t, result.Tiles, result.Votes.Total())
		assert.Error(t, result.Err)
		assert.Equal(t, StateFailed, p.State())
	})

	t.Run("row count mismatch is an inference error", func(t *testing.T) {
		pyr := tissueSlide()
		defer pyr.Close()

		p := newTestPredictor(shortRowClassifier{})
		result := p.Predict(ctx, pyr)

		require.Equal(t, OutcomeFailed, result.Outcome)
		assert.ErrorIs(t, result.Err, ErrInference)
	})

	t.Run("cancelled context aborts inference", func(t *testing.T) {
		pyr := tissueSlide()
		defer pyr.Close()

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		p := newTestPredictor(&stubClassifier{class: 2})
		result := p.Predict(cancelled, pyr)

		require.Equal(t, OutcomeFailed, result.Outcome)
		assert.Equal(t, FallbackClass, result.Class)
		assert.ErrorIs(t, result.Err, ErrInference)
	})

	t.Run("decision is independent of batch size", func(t *testing.T) {
		counts := map[int]Result{}
		for _, batchSize := range []int{1, 5, 64} {
			pyr := tissueSlide()
			cfg := testConfig()
			cfg.BatchSize = batchSize
			p := NewSlidePredictor(cfg, &stubClassifier{class: 3}, NewImageNetTransform(), zerolog.Nop())
			counts[batchSize] = p.Predict(ctx, pyr)
			pyr.Close()
		}
		base := counts[1]
		require.Equal(t, OutcomeDecided, base.Outcome)
		for batchSize, result := range counts {
			assert.Equal(t, base.Class, result.Class, "batch size %d", batchSize)
			assert.Equal(t, base.Votes, result.Votes, "batch size %d", batchSize)
			assert.Equal(t, base.Tiles, result.Tiles, "batch size %d", batchSize)
		}
	})
}

func TestSlidePredictorPredictFile(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file falls back with a decode error", func(t *testing.T) {
		p := newTestPredictor(&stubClassifier{class: 1})
		result := p.PredictFile(ctx, "no-such-slide.png")

		require.Equal(t, OutcomeFailed, result.Outcome)
		assert.Equal(t, FallbackClass, result.Class)
		assert.Equal(t, 1, result.Votes[FallbackClass])
		assert.ErrorIs(t, result.Err, ErrDecode)
	})

	t.Run("png slide round trip", func(t *testing.T) {
		img := uniformRGBA(512, 512, 230)
		fillRect(img, 100, 100, 200, 200, 120)
		path := filepath.Join(t.TempDir(), "slide.png")
		require.NoError(t, imaging.Save(img, path))

		p := newTestPredictor(&stubClassifier{class: 1})
		result := p.PredictFile(ctx, path)

		require.Equal(t, OutcomeDecided, result.Outcome)
		assert.Equal(t, 1, result.Class)
	})
}
