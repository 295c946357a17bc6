package slide

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SlidePredictor wires detection, dataset construction and batched
// inference into the per-slide state machine:
//
//	Idle -> DetectingForeground -> (NoTissue | BuildingDataset)
//	     -> Inferring -> Decided
//
// Any decode, detection or inference failure short-circuits to the
// deterministic fallback decision instead of propagating, so one bad
// slide never aborts a batch run. The predictor processes one slide at
// a time; it is not safe for concurrent use.
type SlidePredictor struct {
	cfg        Config
	detector   *ForegroundDetector
	classifier Classifier
	trans      Transform
	log        zerolog.Logger
	state      State
}

// NewSlidePredictor builds a predictor from a validated config, a
// classifier, and a tile transform.
func NewSlidePredictor(cfg Config, classifier Classifier, trans Transform, log zerolog.Logger) *SlidePredictor {
	return &SlidePredictor{
		cfg:        cfg,
		detector:   NewForegroundDetector(cfg.Foreground, log),
		classifier: classifier,
		trans:      trans,
		log:        log,
		state:      StateIdle,
	}
}

// State returns the predictor's position in the state machine after the
// most recent Predict call (diagnostic only).
func (p *SlidePredictor) State() State {
	return p.state
}

// PredictFile opens the slide at path, classifies it, and releases the
// pyramid on both success and failure paths.
func (p *SlidePredictor) PredictFile(ctx context.Context, path string) Result {
	pyr, err := OpenImagePyramid(path)
	if err != nil {
		return p.fallback(err, 0)
	}
	defer pyr.Close()
	return p.Predict(ctx, pyr)
}

// Predict classifies one slide. The returned Result always carries a
// class in [0, NumClasses); errors surface only through the Failed
// outcome tag.
func (p *SlidePredictor) Predict(ctx context.Context, pyr Pyramid) Result {
	p.state = StateDetectingForeground
	detectStart := time.Now()
	regions, err := p.detector.Detect(pyr)
	detectDur := time.Since(detectStart)
	if err != nil {
		return p.fallback(err, 0)
	}
	p.log.Info().
		Int("regions", len(regions)).
		Dur("fg_detect", detectDur).
		Msg("foreground detection")

	if len(regions) == 0 {
		p.state = StateNoTissue
		p.log.Info().Msg("no tissue found, emitting background class")
		return Result{Outcome: OutcomeNoTissue, Class: FallbackClass}
	}

	p.state = StateBuildingDataset
	scaled := make([]Region, len(regions))
	for i := range regions {
		scaled[i] = regions[i].RescalePow2(-p.cfg.ZoomLevel)
	}
	ds, err := NewMultiRegionDataset(pyr, scaled, p.cfg.ZoomLevel, p.cfg.TileSize, p.cfg.TileOverlap, p.trans)
	if err != nil {
		return p.fallback(err, 0)
	}
	if ds.Len() == 0 {
		// Every region was smaller than a tile or filtered to nothing:
		// degrade to the no-tissue path.
		p.state = StateNoTissue
		p.log.Info().Msg("no tiles survived filtering, emitting background class")
		return Result{Outcome: OutcomeNoTissue, Class: FallbackClass}
	}

	p.state = StateInferring
	inferStart := time.Now()
	votes, err := p.infer(ctx, ds)
	if err != nil {
		return p.fallback(err, ds.Len())
	}

	p.state = StateDecided
	class := votes.ArgMax()
	p.log.Info().
		Int("tiles", ds.Len()).
		Ints("votes", votes[:]).
		Int("class", class).
		Dur("inference", time.Since(inferStart)).
		Msg("slide decided")
	return Result{Outcome: OutcomeDecided, Class: class, Votes: votes, Tiles: ds.Len()}
}

// infer iterates the dataset in fixed-size batches, extracting and
// transforming tiles on a bounded worker pool and serializing the
// classifier call per batch. Vote accumulation is commutative, so batch
// order never affects the decision.
func (p *SlidePredictor) infer(ctx context.Context, ds *MultiRegionDataset) (Histogram, error) {
	var votes Histogram

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	for start := 0; start < ds.Len(); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return votes, fmt.Errorf("%w: %v", ErrInference, err)
		}

		end := min(start+p.cfg.BatchSize, ds.Len())
		tensors := make([]Tensor, end-start)

		var g errgroup.Group
		g.SetLimit(workers)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				_, tensor, err := ds.Get(i)
				if err != nil {
					return err
				}
				tensors[i-start] = tensor
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return votes, err
		}

		batch, err := StackBatch(tensors)
		if err != nil {
			return votes, err
		}
		probs, err := p.classifier.Predict(ctx, batch)
		if err != nil {
			return votes, err
		}
		if len(probs) != batch.N {
			return votes, fmt.Errorf("%w: classifier returned %d rows for batch of %d",
				ErrInference, len(probs), batch.N)
		}
		for _, row := range probs {
			votes[ArgMaxFloat(row)]++
		}
	}
	return votes, nil
}

// fallback produces the deterministic failure decision: class 0 with
// full confidence. When the tile count is known the whole count is
// booked on class 0; before the dataset exists a unit vote stands in.
func (p *SlidePredictor) fallback(err error, tiles int) Result {
	votes := Histogram{}
	if tiles > 0 {
		votes[FallbackClass] = tiles
	} else {
		votes[FallbackClass] = 1
	}
	p.log.Error().Err(err).Str("stage", p.state.String()).Msg("slide failed, emitting fallback decision")
	p.state = StateFailed
	return Result{
		Outcome: OutcomeFailed,
		Class:   FallbackClass,
		Votes:   votes,
		Tiles:   tiles,
		Err:     err,
	}
}
