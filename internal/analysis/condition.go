// SPDX-License-Identifier: MIT
/*
Package analysis prepares raw capture frames for pitch estimation.

Conditioning runs in this order:
  - remove the DC offset (mean subtraction)
  - measure the RMS of the DC-free signal
  - optionally high-pass filter to strip rumble below the lowest note
  - taper with the analysis window

The input frame is never modified. Every call returns a new slice, so a
Conditioner can be shared by goroutines working on independent frames.
*/
package analysis

import (
	"fmt"
	"math"
)

// ConditionedFrame is a windowed frame ready for correlation.
type ConditionedFrame struct {
	Samples    []float32
	SourceRMS  float64 // RMS of the DC-free input before filtering and windowing
	SampleRate float64
}

// ConditionerOptions selects the window and optional high-pass filter.
type ConditionerOptions struct {
	Window     WindowFunc
	HighPassHz float64 // 0 disables the filter
	HighPassQ  float64 // 0 selects a Butterworth response
}

// Conditioner applies a fixed window and filter to frames of one size.
type Conditioner struct {
	size       int
	sampleRate float64
	coeffs     []float64

	highpass   biquad
	highpassOn bool
}

// NewConditioner precomputes the window coefficients and filter design for
// frames of size samples.
func NewConditioner(size int, sampleRate float64, opts ConditionerOptions) (*Conditioner, error) {
	if size < 2 {
		return nil, fmt.Errorf("conditioner: frame size must be at least 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("conditioner: sample rate must be positive, got %g", sampleRate)
	}
	c := &Conditioner{
		size:       size,
		sampleRate: sampleRate,
		coeffs:     opts.Window.Coefficients(size),
	}
	if opts.HighPassHz > 0 {
		hp, err := newHighpass(opts.HighPassHz, opts.HighPassQ, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("conditioner: %w", err)
		}
		c.highpass = hp
		c.highpassOn = true
	}
	return c, nil
}

// Size returns the frame length the conditioner was built for.
func (c *Conditioner) Size() int { return c.size }

// SampleRate returns the sample rate the filter was designed for.
func (c *Conditioner) SampleRate() float64 { return c.sampleRate }

// Window returns a copy of the window coefficients. The estimator uses
// them to undo the taper's own autocorrelation.
func (c *Conditioner) Window() []float64 {
	out := make([]float64, len(c.coeffs))
	copy(out, c.coeffs)
	return out
}

// Condition returns the conditioned copy of frame. Frames shorter than the
// configured size are zero padded, longer frames are truncated.
func (c *Conditioner) Condition(frame []float32) ConditionedFrame {
	work := make([]float64, c.size)
	n := min(len(frame), c.size)
	for i := range n {
		work[i] = float64(frame[i])
	}

	rms := removeDC(work[:n])

	if c.highpassOn {
		c.highpass.filter(work)
	}

	out := make([]float32, c.size)
	for i, v := range work {
		out[i] = float32(v * c.coeffs[i])
	}

	return ConditionedFrame{
		Samples:    out,
		SourceRMS:  rms,
		SampleRate: c.sampleRate,
	}
}

// Condition applies a Hann window without high-pass filtering to a frame
// of any length.
func Condition(frame []float32, sampleRate float64) ConditionedFrame {
	if len(frame) < 2 {
		out := make([]float32, len(frame))
		return ConditionedFrame{Samples: out, SampleRate: sampleRate}
	}
	c := &Conditioner{
		size:       len(frame),
		sampleRate: sampleRate,
		coeffs:     Hann.Coefficients(len(frame)),
	}
	return c.Condition(frame)
}

// removeDC subtracts the mean in place and returns the RMS of the result.
func removeDC(buf []float64) float64 {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, v := range buf {
		sum += v
	}
	mean := sum / float64(len(buf))

	var energy float64
	for i := range buf {
		buf[i] -= mean
		energy += buf[i] * buf[i]
	}
	rms := math.Sqrt(energy / float64(len(buf)))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return 0
	}
	return rms
}
