// SPDX-License-Identifier: MIT
package tuner

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Smoother steadies a stream of frequency estimates. Each update passes
// through a running median over the last few estimates and then an
// exponential moving average. Both work on log2(frequency) so that a
// step of a given size in cents is treated the same at any pitch.
//
// Not safe for concurrent use.
type Smoother struct {
	factor    float64 // weight of the history in the moving average
	jumpCents float64

	history []float64 // ring of log2 frequencies
	next    int
	count   int
	sorted  []float64

	value  float64
	primed bool
}

// NewSmoother returns a smoother with a median over window estimates and
// an EMA weight of factor on the previous value. A factor of 0 disables
// the average, a window of 1 disables the median. A jump of more than
// jumpCents from the current value restarts smoothing; 0 disables that.
func NewSmoother(window int, factor, jumpCents float64) *Smoother {
	window = max(window, 1)
	return &Smoother{
		factor:    factor,
		jumpCents: jumpCents,
		history:   make([]float64, window),
		sorted:    make([]float64, 0, window),
	}
}

// Update adds a frequency and returns the smoothed frequency.
func (s *Smoother) Update(freq float64) float64 {
	l := math.Log2(freq)
	if s.primed && s.jumpCents > 0 && math.Abs(l-s.value)*1200 > s.jumpCents {
		s.Reset()
	}

	s.history[s.next] = l
	s.next = (s.next + 1) % len(s.history)
	s.count = min(s.count+1, len(s.history))

	// Filling restarts at slot 0 after a reset, so the live entries are
	// always the first count slots.
	s.sorted = append(s.sorted[:0], s.history[:s.count]...)
	slices.Sort(s.sorted)
	median := stat.Quantile(0.5, stat.Empirical, s.sorted, nil)

	if !s.primed {
		s.value = median
		s.primed = true
	} else {
		s.value = s.factor*s.value + (1-s.factor)*median
	}
	return math.Exp2(s.value)
}

// Reset forgets all history.
func (s *Smoother) Reset() {
	s.next, s.count = 0, 0
	s.primed = false
}
