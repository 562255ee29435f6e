// Package utils provides synthetic signals shared by the package tests.
package utils

import (
	"math"
	"math/rand/v2"
)

// Partial is one sinusoidal component of a synthetic tone.
type Partial struct {
	Frequency float64 // Hz
	Amplitude float64 // linear, 1.0 = full scale
	Phase     float64 // radians
}

// GenerateSineWave returns size samples of a sine at frequency with the
// given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	return GenerateComplexWave(size, sampleRate, Partial{Frequency: frequency, Amplitude: amplitude})
}

// GenerateComplexWave sums the partials into size samples.
func GenerateComplexWave(size int, sampleRate float64, partials ...Partial) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		var v float64
		for _, p := range partials {
			v += p.Amplitude * math.Sin(2*math.Pi*p.Frequency*tm+p.Phase)
		}
		buffer[i] = float32(v)
	}
	return buffer
}

// GeneratePluck returns a decaying harmonic tone shaped like a plucked
// string: harmonic h has amplitude 1/h and every partial decays with the
// time constant decay (seconds).
func GeneratePluck(size int, sampleRate, fundamental float64, harmonics int, decay float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		env := math.Exp(-tm / decay)
		var v float64
		for h := 1; h <= harmonics; h++ {
			v += math.Sin(2*math.Pi*fundamental*float64(h)*tm) / float64(h)
		}
		buffer[i] = float32(0.5 * env * v)
	}
	return buffer
}

// GenerateNoise returns uniform white noise in [-amplitude, amplitude]
// from a deterministic seed.
func GenerateNoise(size int, amplitude float64, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32(amplitude * (2*rng.Float64() - 1))
	}
	return buffer
}

// RMS returns the root mean square of buffer.
func RMS(buffer []float32) float64 {
	if len(buffer) == 0 {
		return 0
	}
	var sum float64
	for _, v := range buffer {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(buffer)))
}
