package slide

import (
	"errors"
	"fmt"
)

// NumClasses is the fixed number of output classes the pipeline votes over.
const NumClasses = 4

// FallbackClass is the class emitted when a slide cannot be processed and
// when no tissue is found. The two cases map to the same class but carry
// different Outcome tags.
const FallbackClass = 0

// Error kinds of the per-slide pipeline. Decode, detection and inference
// errors are fatal for the slide and converted into the fallback decision
// by the predictor. Geometry errors are recovered locally by dropping the
// offending polygon.
var (
	ErrDecode    = errors.New("decode error")
	ErrDetection = errors.New("detection error")
	ErrGeometry  = errors.New("geometry error")
	ErrInference = errors.New("inference error")
)

// Histogram counts, per class, the tiles whose arg-max probability landed
// on that class.
type Histogram [NumClasses]int

// Total returns the number of votes across all classes.
func (h Histogram) Total() int {
	n := 0
	for _, v := range h {
		n += v
	}
	return n
}

// ArgMax returns the class with the most votes. Ties resolve to the
// lowest class index.
func (h Histogram) ArgMax() int {
	best := 0
	for c := 1; c < NumClasses; c++ {
		if h[c] > h[best] {
			best = c
		}
	}
	return best
}

// Outcome tags a slide-level result.
type Outcome int

const (
	// OutcomeDecided means the pipeline ran to completion and the class
	// is the arg-max of the vote histogram.
	OutcomeDecided Outcome = iota

	// OutcomeNoTissue means foreground detection found no usable tissue;
	// the class is FallbackClass as a detection outcome.
	OutcomeNoTissue

	// OutcomeFailed means a stage errored and the deterministic fallback
	// was substituted. This is a product decision, not a detection
	// outcome, and must stay distinguishable from OutcomeNoTissue.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDecided:
		return "decided"
	case OutcomeNoTissue:
		return "no-tissue"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the slide-level output: an integer class in [0, NumClasses)
// plus the raw vote histogram for downstream ensembling.
type Result struct {
	Outcome Outcome
	Class   int
	Votes   Histogram

	// Tiles is the number of tiles the dataset exposed, when known.
	Tiles int

	// Err is the causal error for OutcomeFailed, nil otherwise.
	Err error
}

// State names the predictor's position in the per-slide state machine.
type State int

const (
	StateIdle State = iota
	StateDetectingForeground
	StateNoTissue
	StateBuildingDataset
	StateInferring
	StateDecided
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetectingForeground:
		return "detecting-foreground"
	case StateNoTissue:
		return "no-tissue"
	case StateBuildingDataset:
		return "building-dataset"
	case StateInferring:
		return "inferring"
	case StateDecided:
		return "decided"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
