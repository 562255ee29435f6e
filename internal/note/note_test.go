// SPDX-License-Identifier: MIT
package note

import (
	"errors"
	"math"
	"testing"
	"time"
)

func newTestMapper(t *testing.T, ref float64) *Mapper {
	t.Helper()
	m, err := NewMapper(ref, 0, 127)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	m.now = func() time.Time { return time.Unix(1700000000, 0) }
	return m
}

func TestMapKnownNotes(t *testing.T) {
	t.Parallel()
	m := newTestMapper(t, DefaultReferenceHz)

	tests := []struct {
		freq      float64
		wantNote  string
		wantNum   int
		maxCents  float64
		wantCents float64
	}{
		{440, "A4", 69, 0.01, 0},
		{82.41, "E2", 40, 5, 0},
		{110, "A2", 45, 0.01, 0},
		{261.63, "C4", 60, 0.1, 0},
		{329.63, "E4", 64, 0.1, 0},
		{27.5, "A0", 21, 0.01, 0},
		{4186.01, "C8", 108, 0.1, 0},
		{466.16, "A#4", 70, 0.1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.wantNote, func(t *testing.T) {
			got, err := m.Map(tt.freq, 0.1)
			if err != nil {
				t.Fatalf("Map(%v): %v", tt.freq, err)
			}
			if got.Note != tt.wantNote || got.Number != tt.wantNum {
				t.Errorf("Map(%v) = %s (%d), want %s (%d)", tt.freq, got.Note, got.Number, tt.wantNote, tt.wantNum)
			}
			if math.Abs(got.CentsOffset-tt.wantCents) > tt.maxCents {
				t.Errorf("CentsOffset = %.4f, want %.2f ± %.2f", got.CentsOffset, tt.wantCents, tt.maxCents)
			}
			if got.FrequencyHz != tt.freq || got.AmplitudeRMS != 0.1 {
				t.Errorf("reading did not carry input values: %+v", got)
			}
		})
	}
}

func TestMapSignOfCents(t *testing.T) {
	t.Parallel()
	m := newTestMapper(t, DefaultReferenceHz)

	sharp, _ := m.Map(445, 0)
	flat, _ := m.Map(435, 0)
	if sharp.Note != "A4" || sharp.CentsOffset <= 0 {
		t.Errorf("445 Hz = %v, want A4 sharp", sharp)
	}
	if flat.Note != "A4" || flat.CentsOffset >= 0 {
		t.Errorf("435 Hz = %v, want A4 flat", flat)
	}
}

func TestReadingInTune(t *testing.T) {
	t.Parallel()
	m := newTestMapper(t, DefaultReferenceHz)

	near, err := m.Map(441, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !near.InTune(5) {
		t.Errorf("%v not in tune within 5 cents", near)
	}
	if near.InTune(1) {
		t.Errorf("%v in tune within 1 cent", near)
	}

	flat := Reading{Note: "E2", CentsOffset: -5}
	if !flat.InTune(5) {
		t.Error("the tolerance bound is inclusive")
	}
}

func TestMapIsIdempotent(t *testing.T) {
	t.Parallel()
	m := newTestMapper(t, DefaultReferenceHz)
	for _, f := range []float64{82.41, 146.9, 311.1, 987.7} {
		a, errA := m.Map(f, 0.2)
		b, errB := m.Map(f, 0.2)
		if errA != nil || errB != nil {
			t.Fatalf("Map(%v): %v, %v", f, errA, errB)
		}
		a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
		if a != b {
			t.Errorf("Map(%v) not deterministic: %+v vs %+v", f, a, b)
		}
	}
}

func TestCentsStayWithinHalfSemitone(t *testing.T) {
	t.Parallel()
	m := newTestMapper(t, DefaultReferenceHz)

	for f := 20.0; f < 5000; f *= 1.0007 {
		r, err := m.Map(f, 0)
		if err != nil {
			t.Fatalf("Map(%v): %v", f, err)
		}
		if r.CentsOffset < -50 || r.CentsOffset > 50 {
			t.Fatalf("Map(%v) cents = %v, outside [-50, 50]", f, r.CentsOffset)
		}
		if d := math.Abs(m.Frequency(r.Number)*math.Exp2(r.CentsOffset/1200) - f); d > 1e-9*f {
			t.Fatalf("Map(%v) does not reconstruct the input (off by %g)", f, d)
		}
	}
}

func TestMapHalfwayBoundary(t *testing.T) {
	t.Parallel()
	m := newTestMapper(t, DefaultReferenceHz)

	// Exactly between A4 and A#4.
	f := 440 * math.Exp2(0.5/12)
	r, err := m.Map(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(math.Abs(r.CentsOffset)-50) > 1e-6 {
		t.Errorf("cents = %v, want ±50", r.CentsOffset)
	}
	if r.Number != 69 && r.Number != 70 {
		t.Errorf("Number = %d, want A4 or A#4", r.Number)
	}
}

func TestReferencePitch(t *testing.T) {
	t.Parallel()
	m := newTestMapper(t, 442)

	r, err := m.Map(442, 0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Note != "A4" || math.Abs(r.CentsOffset) > 1e-9 {
		t.Errorf("Map(442) at A=442 = %v, want A4 +0", r)
	}

	// Concert A is about 7.85 cents flat against A=442.
	r, _ = m.Map(440, 0)
	if want := 1200 * math.Log2(440.0/442); math.Abs(r.CentsOffset-want) > 1e-9 {
		t.Errorf("Map(440) at A=442 cents = %v, want %v", r.CentsOffset, want)
	}
}

func TestMapErrors(t *testing.T) {
	t.Parallel()
	m, err := NewMapper(DefaultReferenceHz, DefaultLowest, DefaultHighest)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		freq float64
		want error
	}{
		{"zero", 0, ErrInvalidFrequency},
		{"negative", -110, ErrInvalidFrequency},
		{"nan", math.NaN(), ErrInvalidFrequency},
		{"inf", math.Inf(1), ErrInvalidFrequency},
		{"below E1", 30, ErrOutOfRange},
		{"above C8", 5000, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Map(tt.freq, 0); !errors.Is(err, tt.want) {
				t.Errorf("Map(%v) error = %v, want %v", tt.freq, err, tt.want)
			}
		})
	}
}

func TestNewMapperErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewMapper(0, 0, 127); err == nil {
		t.Error("expected error for zero reference")
	}
	if _, err := NewMapper(440, 60, 40); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int
		want string
	}{
		{69, "A4"},
		{60, "C4"},
		{40, "E2"},
		{28, "E1"},
		{108, "C8"},
		{61, "C#4"},
		{0, "C-1"},
		{-1, "B-2"},
	}
	for _, tt := range tests {
		if got := Name(tt.n); got != tt.want {
			t.Errorf("Name(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestParseNote(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"E2", 40, false},
		{"A4", 69, false},
		{"C#4", 61, false},
		{"Bb3", 58, false},
		{"e1", 28, false},
		{" C8 ", 108, false},
		{"C-1", 0, false},
		{"H2", 0, true},
		{"A", 0, true},
		{"A#", 0, true},
		{"Cx4", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNote(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNote(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseNote(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseNameRoundTrip(t *testing.T) {
	t.Parallel()
	for n := 0; n <= 127; n++ {
		got, err := ParseNote(Name(n))
		if err != nil || got != n {
			t.Errorf("ParseNote(Name(%d)) = %d, %v", n, got, err)
		}
	}
}

func BenchmarkMap(b *testing.B) {
	m, err := NewMapper(DefaultReferenceHz, DefaultLowest, DefaultHighest)
	if err != nil {
		b.Fatal(err)
	}
	for b.Loop() {
		_, _ = m.Map(196.3, 0.1)
	}
}
