// Package transform implements the fixed-order video transform chain
// (HDR-Tonemap → Scaler → Interpolator) from spec.md §4.2. Each stage
// implements Stage and is a pass-through when disabled, so the Chain's
// composition never changes shape across configurations.
package transform

import "github.com/nitrogen-cast/nitrogen/internal/pipeline"

// Stage processes zero or more input frames into zero or more output frames.
// Most stages are 1:1; the interpolator is the one 1:N stage in the chain.
type Stage interface {
	Process(f *pipeline.Frame) ([]*pipeline.Frame, error)
	// Name identifies the stage for logging/metrics.
	Name() string
}

// Chain runs frames through a fixed ordered set of stages.
type Chain struct {
	stages []Stage
}

// NewChain builds the fixed-order chain: tonemap, scaler, interpolator, in
// that order, per spec.md §4.2. Any stage may be nil-behaving (disabled) but
// the slots are always present so the composition itself is fixed.
func NewChain(tonemap, scaler, interpolator Stage) *Chain {
	return &Chain{stages: []Stage{tonemap, scaler, interpolator}}
}

// Process runs f through every stage in order, threading each stage's output
// frames into the next. A stage that returns multiple frames (the
// interpolator) fans out before the remaining stages run on each.
func (c *Chain) Process(f *pipeline.Frame) ([]*pipeline.Frame, error) {
	frames := []*pipeline.Frame{f}
	for _, stage := range c.stages {
		if stage == nil {
			continue
		}
		var next []*pipeline.Frame
		for _, in := range frames {
			out, err := stage.Process(in)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		frames = next
	}
	return frames, nil
}
