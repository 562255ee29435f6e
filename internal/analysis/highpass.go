// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
)

// butterworthQ gives a maximally flat second-order response.
const butterworthQ = 1 / math.Sqrt2

// biquad holds normalised second-order filter coefficients (a0 == 1).
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// newHighpass designs an RBJ cookbook high-pass section at cutoff Hz.
func newHighpass(cutoff, q, sampleRate float64) (biquad, error) {
	if sampleRate <= 0 {
		return biquad{}, fmt.Errorf("high-pass: sample rate must be positive, got %g", sampleRate)
	}
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return biquad{}, fmt.Errorf("high-pass: cutoff %g Hz outside (0, %g)", cutoff, sampleRate/2)
	}
	if q <= 0 {
		q = butterworthQ
	}

	w0 := 2 * math.Pi * cutoff / sampleRate
	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha

	return biquad{
		b0: (1 + cw) / 2 / a0,
		b1: -(1 + cw) / a0,
		b2: (1 + cw) / 2 / a0,
		a1: -2 * cw / a0,
		a2: (1 - alpha) / a0,
	}, nil
}

// filter runs the section over buf in place using Direct Form II
// Transposed with zero initial state. The state lives on the stack, so
// concurrent calls on the same coefficients are safe.
func (f biquad) filter(buf []float64) {
	var d0, d1 float64
	for i, x := range buf {
		y := f.b0*x + d0
		d0 = f.b1*x - f.a1*y + d1
		d1 = f.b2*x - f.a2*y
		buf[i] = y
	}
}

// response returns the magnitude response at freq Hz.
func (f biquad) response(freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	z1 := complex(math.Cos(-w), math.Sin(-w))
	z2 := z1 * z1
	num := complex(f.b0, 0) + complex(f.b1, 0)*z1 + complex(f.b2, 0)*z2
	den := 1 + complex(f.a1, 0)*z1 + complex(f.a2, 0)*z2
	return cmplx.Abs(num / den)
}
