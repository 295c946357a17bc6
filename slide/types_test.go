package slide

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistogram(t *testing.T) {
	t.Run("total", func(t *testing.T) {
		h := Histogram{3, 0, 7, 2}
		assert.Equal(t, 12, h.Total())
		assert.Zero(t, Histogram{}.Total())
	})

	t.Run("argmax", func(t *testing.T) {
		assert.Equal(t, 2, Histogram{3, 0, 7, 2}.ArgMax())
		assert.Equal(t, 0, Histogram{}.ArgMax())
		// Ties resolve to the lowest class.
		assert.Equal(t, 1, Histogram{0, 5, 5, 0}.ArgMax())
	})
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "decided", OutcomeDecided.String())
	assert.Equal(t, "no-tissue", OutcomeNoTissue.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "inferring", StateInferring.String())
	assert.Equal(t, "failed", StateFailed.String())
}
