// SPDX-License-Identifier: MIT
package pitch

import (
	"tuner/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// correlator computes the raw autocorrelation r(t) of x for t in
// [lo, hi] into dst (dst[i] = r(lo+i)) and returns r(0).
type correlator interface {
	correlate(x []float64, lo, hi int, dst []float64) float64
}

// directCorrelator evaluates one dot product per lag. Only the searched
// lags are computed, which is cheaper than a full transform for guitar
// bands.
type directCorrelator struct{}

func (directCorrelator) correlate(x []float64, lo, hi int, dst []float64) float64 {
	n := len(x)
	for t := lo; t <= hi; t++ {
		dst[t-lo] = floats.Dot(x[:n-t], x[t:])
	}
	return floats.Dot(x, x)
}

// fftCorrelator uses the Wiener-Khinchin relation: the inverse transform
// of the power spectrum is the autocorrelation. The frame is zero padded
// to at least 2N-1 samples so the result is linear, not circular.
type fftCorrelator struct {
	fft      *fourier.FFT
	padded   []float64
	spectrum []complex128
	acf      []float64
}

func newFFTCorrelator(frameSize int) *fftCorrelator {
	n := bitint.FFTLength(frameSize)
	return &fftCorrelator{
		fft:      fourier.NewFFT(n),
		padded:   make([]float64, n),
		spectrum: make([]complex128, n/2+1),
		acf:      make([]float64, n),
	}
}

func (c *fftCorrelator) correlate(x []float64, lo, hi int, dst []float64) float64 {
	copy(c.padded, x)
	clear(c.padded[len(x):])

	c.spectrum = c.fft.Coefficients(c.spectrum, c.padded)
	for i, v := range c.spectrum {
		re, im := real(v), imag(v)
		c.spectrum[i] = complex(re*re+im*im, 0)
	}
	c.acf = c.fft.Sequence(c.acf, c.spectrum)

	// The gonum transforms are unnormalised: a forward and inverse pass
	// scales by the transform length.
	scale := 1 / float64(len(c.padded))
	for t := lo; t <= hi; t++ {
		dst[t-lo] = c.acf[t] * scale
	}
	return c.acf[0] * scale
}
