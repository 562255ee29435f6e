// SPDX-License-Identifier: MIT
package tuner

import (
	"errors"
	"fmt"

	"tuner/internal/analysis"
	"tuner/internal/note"
	"tuner/internal/pitch"
)

// Result is the outcome of running one frame through the pipeline.
// Reading is only filled when Status is Pitched.
type Result struct {
	Estimate pitch.Estimate
	Reading  note.Reading
	Status   pitch.Status
}

// Pipeline runs condition, estimate and map on a frame. The estimator
// keeps workspaces, so a Pipeline belongs to one goroutine.
type Pipeline struct {
	conditioner *analysis.Conditioner
	estimator   *pitch.Estimator
	mapper      *note.Mapper
}

// NewPipeline checks that the stages agree on frame size and sample rate.
func NewPipeline(conditioner *analysis.Conditioner, estimator *pitch.Estimator, mapper *note.Mapper) (*Pipeline, error) {
	cfg := estimator.Config()
	if conditioner.Size() != cfg.FrameSize {
		return nil, fmt.Errorf("conditioner frame size %d does not match estimator frame size %d", conditioner.Size(), cfg.FrameSize)
	}
	if conditioner.SampleRate() != cfg.SampleRate {
		return nil, fmt.Errorf("conditioner sample rate %g does not match estimator sample rate %g", conditioner.SampleRate(), cfg.SampleRate)
	}
	return &Pipeline{conditioner: conditioner, estimator: estimator, mapper: mapper}, nil
}

// BuildPipeline constructs all three stages from their settings.
func BuildPipeline(cfg pitch.Config, opts analysis.ConditionerOptions, referenceHz float64, lowest, highest int) (*Pipeline, error) {
	conditioner, err := analysis.NewConditioner(cfg.FrameSize, cfg.SampleRate, opts)
	if err != nil {
		return nil, err
	}
	estimator, err := pitch.New(cfg, conditioner.Window())
	if err != nil {
		return nil, err
	}
	mapper, err := note.NewMapper(referenceHz, lowest, highest)
	if err != nil {
		return nil, err
	}
	return NewPipeline(conditioner, estimator, mapper)
}

// FrameSize returns the number of samples the pipeline analyses per frame.
func (p *Pipeline) FrameSize() int { return p.estimator.Config().FrameSize }

// SampleRate returns the sample rate the pipeline was built for.
func (p *Pipeline) SampleRate() float64 { return p.estimator.Config().SampleRate }

// Mapper returns the note mapper.
func (p *Pipeline) Mapper() *note.Mapper { return p.mapper }

// Process analyses one frame. It never fails; every problem with the
// signal is reported through Status.
func (p *Pipeline) Process(frame []float32) Result {
	est := p.estimator.Estimate(p.conditioner.Condition(frame))
	res := Result{Estimate: est, Status: est.Status}
	res.Reading.AmplitudeRMS = est.AmplitudeRMS
	if !est.HasPitch() {
		return res
	}

	reading, err := p.mapper.Map(est.FrequencyHz, est.AmplitudeRMS)
	switch {
	case errors.Is(err, note.ErrOutOfRange):
		res.Status = pitch.OutOfRange
		return res
	case err != nil:
		res.Status = pitch.NoSignal
		return res
	}
	res.Reading = reading
	return res
}
