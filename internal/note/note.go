// SPDX-License-Identifier: MIT
// Package note maps frequencies onto 12-tone equal temperament.
package note

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultReferenceHz is concert pitch for A4.
	DefaultReferenceHz = 440.0
	// referenceNumber is the MIDI number of A4.
	referenceNumber = 69
	// DefaultLowest is E1, below the lowest string of a five-string bass.
	DefaultLowest = 28
	// DefaultHighest is C8.
	DefaultHighest = 108
)

var (
	ErrInvalidFrequency = errors.New("frequency must be positive and finite")
	ErrOutOfRange       = errors.New("note outside the playable range")
)

var names = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Reading is a frequency expressed as the nearest note and its offset.
type Reading struct {
	Note         string    `json:"note"`
	Number       int       `json:"number"`
	FrequencyHz  float64   `json:"frequencyHz"`
	CentsOffset  float64   `json:"centsOffset"` // negative is flat
	AmplitudeRMS float64   `json:"amplitudeRms"`
	Timestamp    time.Time `json:"timestamp"`
}

// InTune reports whether the offset is within tolerance cents of the note.
func (r Reading) InTune(tolerance float64) bool {
	return math.Abs(r.CentsOffset) <= tolerance
}

func (r Reading) String() string {
	return fmt.Sprintf("%s %+.1f cents (%.2f Hz)", r.Note, r.CentsOffset, r.FrequencyHz)
}

// Mapper converts frequencies to readings for a fixed reference pitch and
// playable range. It holds no mutable state and is safe for concurrent use.
type Mapper struct {
	referenceHz     float64
	lowest, highest int

	now func() time.Time
}

// NewMapper returns a Mapper tuned to referenceHz for A4 that accepts
// notes lowest..highest inclusive (MIDI numbers).
func NewMapper(referenceHz float64, lowest, highest int) (*Mapper, error) {
	if !(referenceHz > 0) || math.IsInf(referenceHz, 0) {
		return nil, fmt.Errorf("reference pitch must be positive, got %g", referenceHz)
	}
	if lowest > highest {
		return nil, fmt.Errorf("lowest note %s is above highest note %s", Name(lowest), Name(highest))
	}
	return &Mapper{
		referenceHz: referenceHz,
		lowest:      lowest,
		highest:     highest,
		now:         time.Now,
	}, nil
}

// ReferenceHz returns the pitch of A4.
func (m *Mapper) ReferenceHz() float64 { return m.referenceHz }

// Number returns the nearest note number to freq.
func (m *Mapper) Number(freq float64) int {
	return int(math.Round(12*math.Log2(freq/m.referenceHz))) + referenceNumber
}

// Frequency returns the exact frequency of note n.
func (m *Mapper) Frequency(n int) float64 {
	return m.referenceHz * math.Exp2(float64(n-referenceNumber)/12)
}

// Cents returns the offset of freq from note n.
func (m *Mapper) Cents(freq float64, n int) float64 {
	return 1200 * math.Log2(freq/m.Frequency(n))
}

// Map returns the reading for freq. It fails with ErrInvalidFrequency for
// non-positive or non-finite input and with ErrOutOfRange for notes outside
// the playable range.
func (m *Mapper) Map(freq, amplitude float64) (Reading, error) {
	if !(freq > 0) || math.IsInf(freq, 0) {
		return Reading{}, fmt.Errorf("%w: %g", ErrInvalidFrequency, freq)
	}

	n := m.Number(freq)
	cents := m.Cents(freq, n)
	// Rounding error at the half-semitone boundary can leave the offset a
	// hair outside the interval; move to the neighbour instead.
	switch {
	case cents > 50:
		n++
		cents = m.Cents(freq, n)
	case cents < -50:
		n--
		cents = m.Cents(freq, n)
	}

	if n < m.lowest || n > m.highest {
		return Reading{}, fmt.Errorf("%w: %s (%.2f Hz) not in %s..%s",
			ErrOutOfRange, Name(n), freq, Name(m.lowest), Name(m.highest))
	}

	return Reading{
		Note:         Name(n),
		Number:       n,
		FrequencyHz:  freq,
		CentsOffset:  cents,
		AmplitudeRMS: amplitude,
		Timestamp:    m.now(),
	}, nil
}

// Name returns the scientific pitch name of note n, e.g. 69 is "A4".
func Name(n int) string {
	return names[mod(n, 12)] + strconv.Itoa(floorDiv(n, 12)-1)
}

// ParseNote converts a name like "E2", "C#4" or "Bb3" to a note number.
func ParseNote(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid note name: '%s'", s)
	}

	var semitone int
	switch strings.ToUpper(s[:1]) {
	case "C":
		semitone = 0
	case "D":
		semitone = 2
	case "E":
		semitone = 4
	case "F":
		semitone = 5
	case "G":
		semitone = 7
	case "A":
		semitone = 9
	case "B":
		semitone = 11
	default:
		return 0, fmt.Errorf("invalid note name: '%s'", s)
	}

	rest := s[1:]
	switch {
	case strings.HasPrefix(rest, "#"):
		semitone++
		rest = rest[1:]
	case strings.HasPrefix(rest, "b"):
		semitone--
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in note name '%s': %w", s, err)
	}
	return (octave+1)*12 + semitone, nil
}

func mod(a, b int) int {
	return ((a % b) + b) % b
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
