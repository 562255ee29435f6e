// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the taper applied to a frame before correlation.
type WindowFunc int

const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	BlackmanNuttall
	BartlettHann
	Nuttall
	Lanczos
	Rectangular
)

var windowNames = map[WindowFunc]string{
	Hann:            "hann",
	Hamming:         "hamming",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	BartlettHann:    "bartletthann",
	Nuttall:         "nuttall",
	Lanczos:         "lanczos",
	Rectangular:     "rectangular",
}

func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// ParseWindowFunc converts a case-insensitive window name to a WindowFunc.
// Hyphens, underscores and spaces are ignored, so "Blackman-Nuttall" and
// "blackman_nuttall" both parse.
func ParseWindowFunc(name string) (WindowFunc, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name))
	switch key {
	case "hann", "hanning", "":
		return Hann, nil
	case "rectangular", "rect", "none", "boxcar":
		return Rectangular, nil
	}
	for w, n := range windowNames {
		if n == key {
			return w, nil
		}
	}
	return Hann, fmt.Errorf("unknown window function name: '%s'", name)
}

// Coefficients returns the n window weights for w.
func (w WindowFunc) Coefficients(n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	if n < 2 {
		return coeffs
	}
	switch w {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Rectangular:
		window.Rectangular(coeffs)
	default:
		window.Hann(coeffs)
	}
	return coeffs
}
