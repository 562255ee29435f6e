// SPDX-License-Identifier: MIT
package pitch

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Method selects how the autocorrelation is computed.
type Method int

const (
	// MethodDirect evaluates one dot product per lag, O(N*lags).
	MethodDirect Method = iota
	// MethodFFT uses a zero-padded real FFT, O(N log N) for all lags.
	MethodFFT
)

func (m Method) String() string {
	switch m {
	case MethodDirect:
		return "direct"
	case MethodFFT:
		return "fft"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod converts "direct" or "fft" (case-insensitive) to a Method.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "direct", "":
		return MethodDirect, nil
	case "fft":
		return MethodFFT, nil
	default:
		return MethodDirect, fmt.Errorf("unknown autocorrelation method: '%s'", name)
	}
}

// Config fixes the sample rate, frame size and search band of an
// Estimator. All fields are validated once by New.
type Config struct {
	SampleRate     float64
	FrameSize      int
	MinFrequencyHz float64
	MaxFrequencyHz float64

	// NoiseFloorRMS is the input level below which a frame is silence.
	NoiseFloorRMS float64
	// ConfidenceThreshold is the minimum normalised peak score for a pitch.
	ConfidenceThreshold float64
	// OctaveToleranceRatio is the fraction of the best score a shorter
	// lag candidate may fall short by and still be preferred.
	OctaveToleranceRatio float64
	// OctaveSearchDepth is the largest divisor k tried for t*/k.
	// Values below 2 disable octave correction.
	OctaveSearchDepth int

	Method Method
}

const (
	DefaultSampleRate           = 44100
	DefaultFrameSize            = 2048
	DefaultMinFrequencyHz       = 70
	DefaultMaxFrequencyHz       = 1400
	DefaultNoiseFloorRMS        = 0.01
	DefaultConfidenceThreshold  = 0.6
	DefaultOctaveToleranceRatio = 0.1
	DefaultOctaveSearchDepth    = 20
)

// DefaultConfig returns the guitar-range defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:           DefaultSampleRate,
		FrameSize:            DefaultFrameSize,
		MinFrequencyHz:       DefaultMinFrequencyHz,
		MaxFrequencyHz:       DefaultMaxFrequencyHz,
		NoiseFloorRMS:        DefaultNoiseFloorRMS,
		ConfidenceThreshold:  DefaultConfidenceThreshold,
		OctaveToleranceRatio: DefaultOctaveToleranceRatio,
		OctaveSearchDepth:    DefaultOctaveSearchDepth,
		Method:               MethodDirect,
	}
}

// LagRange returns the integer lag bounds for the configured band:
// floor(sr/maxF) and ceil(sr/minF).
func (c Config) LagRange() (lagMin, lagMax int) {
	return int(math.Floor(c.SampleRate / c.MaxFrequencyHz)), int(math.Ceil(c.SampleRate / c.MinFrequencyHz))
}

var errInvalidBand = errors.New("minimum frequency must be below maximum frequency")

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	switch {
	case !(c.SampleRate > 0):
		return fmt.Errorf("sample rate must be positive, got %g", c.SampleRate)
	case c.FrameSize < 4:
		return fmt.Errorf("frame size must be at least 4, got %d", c.FrameSize)
	case !(c.MinFrequencyHz > 0):
		return fmt.Errorf("minimum frequency must be positive, got %g", c.MinFrequencyHz)
	case !(c.MinFrequencyHz < c.MaxFrequencyHz):
		return fmt.Errorf("%w: %g >= %g", errInvalidBand, c.MinFrequencyHz, c.MaxFrequencyHz)
	case c.MaxFrequencyHz > c.SampleRate/2:
		return fmt.Errorf("maximum frequency %g exceeds Nyquist %g", c.MaxFrequencyHz, c.SampleRate/2)
	case c.NoiseFloorRMS < 0 || math.IsNaN(c.NoiseFloorRMS):
		return fmt.Errorf("noise floor must be non-negative, got %g", c.NoiseFloorRMS)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 || math.IsNaN(c.ConfidenceThreshold):
		return fmt.Errorf("confidence threshold must be in [0, 1], got %g", c.ConfidenceThreshold)
	case c.OctaveToleranceRatio < 0 || c.OctaveToleranceRatio >= 1 || math.IsNaN(c.OctaveToleranceRatio):
		return fmt.Errorf("octave tolerance ratio must be in [0, 1), got %g", c.OctaveToleranceRatio)
	case c.OctaveSearchDepth < 0:
		return fmt.Errorf("octave search depth must be non-negative, got %d", c.OctaveSearchDepth)
	case c.Method != MethodDirect && c.Method != MethodFFT:
		return fmt.Errorf("unknown autocorrelation method %v", c.Method)
	}

	// The Nyquist check above keeps lagMin >= 2, so lagMin-1 is a valid lag.
	_, lagMax := c.LagRange()
	// The window autocorrelation must stay well above zero over every
	// evaluated lag, so the longest lag may span at most half the frame.
	if need := 2 * (lagMax + 1); c.FrameSize < need {
		return fmt.Errorf("frame size %d too short for %g Hz: need at least %d samples", c.FrameSize, c.MinFrequencyHz, need)
	}
	return nil
}
