// SPDX-License-Identifier: MIT
/*
Package pitch estimates the fundamental frequency of a conditioned frame by
time-domain autocorrelation.

For every lag t in the search band the score is

	s(t) = (r_x(t) / r_x(0)) / (r_w(t) / r_w(0))

where r_x is the autocorrelation of the windowed frame and r_w that of the
window itself. Dividing by the window term removes the taper's downward
slope, which would otherwise drag the peak toward shorter lags. A
periodic signal scores close to 1 at its period and at every multiple of
it.

The best peak is then checked against its sub-multiples to fix octave
errors and refined to sub-sample precision with a parabola through the
three scores around it.

An Estimator keeps reusable workspaces and must be used from a single
goroutine.
*/
package pitch

import (
	"fmt"
	"math"

	"tuner/internal/analysis"

	"gonum.org/v1/gonum/floats"
)

// Status classifies the outcome of an estimate.
type Status int

const (
	// NoSignal: the frame is below the noise floor or has no usable energy.
	NoSignal Status = iota
	// Pitched: FrequencyHz holds a valid estimate.
	Pitched
	// Ambiguous: a peak was found but its confidence is below threshold.
	Ambiguous
	// OutOfRange: the period lies outside the configured band.
	OutOfRange
)

func (s Status) String() string {
	switch s {
	case NoSignal:
		return "no_signal"
	case Pitched:
		return "pitched"
	case Ambiguous:
		return "ambiguous"
	case OutOfRange:
		return "out_of_range"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText encodes the status by name, so JSON consumers see
// "pitched" rather than a number.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Estimate is the result for one frame. FrequencyHz is zero unless Status
// is Pitched.
type Estimate struct {
	FrequencyHz  float64
	Confidence   float64
	AmplitudeRMS float64
	Lag          float64 // refined period in samples
	Status       Status
}

// HasPitch reports whether the estimate carries a frequency.
func (e Estimate) HasPitch() bool {
	return e.Status == Pitched && e.FrequencyHz > 0
}

// Estimator finds the fundamental period of conditioned frames.
type Estimator struct {
	cfg    Config
	lagMin int
	lagMax int
	lo, hi int // evaluated lags, one beyond the band on each side

	windowACF []float64 // r_w(t)/r_w(0) for t in [0, hi]
	frame     []float64
	scores    []float64 // s(t) at index t-lo
	corr      correlator
}

// New builds an Estimator for cfg. window holds the analysis window
// coefficients used by the conditioner; nil means a rectangular window.
func New(cfg Config, window []float64) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pitch: %w", err)
	}
	if window == nil {
		window = make([]float64, cfg.FrameSize)
		for i := range window {
			window[i] = 1
		}
	}
	if len(window) != cfg.FrameSize {
		return nil, fmt.Errorf("pitch: window has %d coefficients, frame size is %d", len(window), cfg.FrameSize)
	}

	lagMin, lagMax := cfg.LagRange()
	e := &Estimator{
		cfg:    cfg,
		lagMin: lagMin,
		lagMax: lagMax,
		lo:     lagMin - 1,
		hi:     lagMax + 1,
		frame:  make([]float64, cfg.FrameSize),
	}
	e.scores = make([]float64, e.hi-e.lo+1)

	rw0 := floats.Dot(window, window)
	if !(rw0 > 0) {
		return nil, fmt.Errorf("pitch: window has no energy")
	}
	e.windowACF = make([]float64, e.hi+1)
	for t := range e.windowACF {
		e.windowACF[t] = floats.Dot(window[:len(window)-t], window[t:]) / rw0
		if !(e.windowACF[t] > 0) {
			return nil, fmt.Errorf("pitch: window autocorrelation vanishes at lag %d", t)
		}
	}

	switch cfg.Method {
	case MethodFFT:
		e.corr = newFFTCorrelator(cfg.FrameSize)
	default:
		e.corr = directCorrelator{}
	}
	return e, nil
}

// Config returns the configuration the estimator was built with.
func (e *Estimator) Config() Config { return e.cfg }

// Estimate returns the pitch of frame. It never fails: silence, noise,
// flat input and out-of-band periods all produce an Estimate with a zero
// frequency and the matching Status.
func (e *Estimator) Estimate(frame analysis.ConditionedFrame) Estimate {
	est := Estimate{AmplitudeRMS: frame.SourceRMS, Status: NoSignal}

	// Written so that a NaN level also counts as silence.
	if !(frame.SourceRMS >= e.cfg.NoiseFloorRMS) {
		return est
	}

	n := min(len(frame.Samples), len(e.frame))
	for i := range n {
		e.frame[i] = float64(frame.Samples[i])
	}
	clear(e.frame[n:])

	r0 := e.corr.correlate(e.frame, e.lo, e.hi, e.scores)
	if !(r0 > 0) || math.IsInf(r0, 0) {
		return est
	}
	for i := range e.scores {
		e.scores[i] /= r0 * e.windowACF[e.lo+i]
	}

	best, ok := e.bestPeak()
	if !ok {
		est.Status = OutOfRange
		return est
	}

	lag := e.correctOctave(best)
	offset, peak := e.interpolate(lag)
	refined := float64(lag) + offset

	est.Confidence = clamp01(peak)
	if est.Confidence < e.cfg.ConfidenceThreshold {
		est.Status = Ambiguous
		return est
	}

	freq := e.cfg.SampleRate / refined
	if freq < e.cfg.MinFrequencyHz || freq > e.cfg.MaxFrequencyHz {
		est.Status = OutOfRange
		return est
	}

	est.FrequencyHz = freq
	est.Lag = refined
	est.Status = Pitched
	return est
}

// score returns s(t) for an evaluated lag.
func (e *Estimator) score(t int) float64 {
	return e.scores[t-e.lo]
}

// isPeak reports whether t is a local maximum inside the band.
func (e *Estimator) isPeak(t int) bool {
	if t < e.lagMin || t > e.lagMax {
		return false
	}
	s := e.score(t)
	return s > e.score(t-1) && s >= e.score(t+1)
}

// bestPeak returns the lag of the highest local maximum in the band.
func (e *Estimator) bestPeak() (int, bool) {
	best, bestScore := 0, math.Inf(-1)
	for t := e.lagMin; t <= e.lagMax; t++ {
		if e.isPeak(t) && e.score(t) > bestScore {
			best, bestScore = t, e.score(t)
		}
	}
	return best, best != 0
}

// peakNear returns the best local maximum within one sample of target.
func (e *Estimator) peakNear(target float64) (int, bool) {
	center := int(math.Round(target))
	found, bestScore := 0, math.Inf(-1)
	for t := center - 1; t <= center+1; t++ {
		if e.isPeak(t) && e.score(t) > bestScore {
			found, bestScore = t, e.score(t)
		}
	}
	return found, found != 0
}

// maxNear returns the highest score within one sample of target, limited
// to the evaluated lags.
func (e *Estimator) maxNear(target float64) float64 {
	center := int(math.Round(target))
	best := math.Inf(-1)
	for t := max(center-1, e.lo); t <= min(center+1, e.hi); t++ {
		best = max(best, e.score(t))
	}
	return best
}

// correctOctave looks for the shortest period consistent with the peak at
// best. A sub-multiple best/k replaces best only if it is itself a peak
// scoring within the tolerance of best, and every multiple j*best/k for
// j < k scores as well. The second condition keeps a lone overtone
// coincidence from pulling the result an octave (or more) too high.
func (e *Estimator) correctOctave(best int) int {
	if e.cfg.OctaveSearchDepth < 2 {
		return best
	}
	offset, _ := e.interpolate(best)
	period := float64(best) + offset
	threshold := e.score(best) * (1 - e.cfg.OctaveToleranceRatio)

	for k := e.cfg.OctaveSearchDepth; k >= 2; k-- {
		sub := period / float64(k)
		if sub < float64(e.lagMin)-1 {
			continue
		}
		cand, ok := e.peakNear(sub)
		if !ok || e.score(cand) < threshold {
			continue
		}
		consistent := true
		for j := 2; j < k; j++ {
			if e.maxNear(float64(j)*sub) < threshold {
				consistent = false
				break
			}
		}
		if consistent {
			return cand
		}
	}
	return best
}

// interpolate fits a parabola through the scores around lag and returns
// the vertex offset in [-0.5, 0.5] and the score at the vertex.
func (e *Estimator) interpolate(lag int) (offset, peak float64) {
	a, b, c := e.score(lag-1), e.score(lag), e.score(lag+1)
	den := a - 2*b + c
	if den >= 0 {
		return 0, b
	}
	offset = 0.5 * (a - c) / den
	offset = max(-0.5, min(0.5, offset))
	peak = b - 0.25*(a-c)*offset
	return offset, peak
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}
