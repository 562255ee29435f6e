// SPDX-License-Identifier: MIT
package tuner

import (
	"math"
	"sync"
	"testing"

	"tuner/internal/analysis"
	"tuner/internal/note"
	"tuner/internal/pitch"
	"tuner/pkg/utils"
)

func newTestPipeline(t testing.TB, lowest, highest int) *Pipeline {
	t.Helper()
	p, err := BuildPipeline(pitch.DefaultConfig(), analysis.ConditionerOptions{Window: analysis.Hann}, note.DefaultReferenceHz, lowest, highest)
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	return p
}

// A 46 ms frame of a pure A2 goes through condition, estimate and map.
func TestPipelineEndToEndA2(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, note.DefaultLowest, note.DefaultHighest)

	frame := utils.GenerateSineWave(2048, 44100, 110, 0.5)
	res := p.Process(frame)

	if res.Status != pitch.Pitched {
		t.Fatalf("Status = %v, want pitched", res.Status)
	}
	if res.Reading.Note != "A2" {
		t.Errorf("Note = %q, want A2", res.Reading.Note)
	}
	if math.Abs(res.Reading.CentsOffset) >= 2 {
		t.Errorf("CentsOffset = %.3f, want |cents| < 2", res.Reading.CentsOffset)
	}
	if f := res.Reading.FrequencyHz; f < 109.5 || f > 110.5 {
		t.Errorf("FrequencyHz = %.3f, want within [109.5, 110.5]", f)
	}
}

func TestPipelineOpenStrings(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, note.DefaultLowest, note.DefaultHighest)

	openStrings := []struct {
		freq float64
		note string
	}{
		{82.41, "E2"},
		{110, "A2"},
		{146.83, "D3"},
		{196, "G3"},
		{246.94, "B3"},
		{329.63, "E4"},
	}
	for _, s := range openStrings {
		res := p.Process(utils.GeneratePluck(2048, 44100, s.freq, 8, 0.8))
		if res.Status != pitch.Pitched || res.Reading.Note != s.note {
			t.Errorf("%.2f Hz: got %v %q, want %s", s.freq, res.Status, res.Reading.Note, s.note)
		}
	}
}

func TestPipelineSilence(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, note.DefaultLowest, note.DefaultHighest)

	res := p.Process(make([]float32, 2048))
	if res.Status != pitch.NoSignal {
		t.Errorf("Status = %v, want no_signal", res.Status)
	}
	if res.Reading.Note != "" || res.Reading.FrequencyHz != 0 {
		t.Errorf("Reading = %+v, want empty", res.Reading)
	}
}

func TestPipelineNoteOutsidePlayableRange(t *testing.T) {
	t.Parallel()
	lowest, _ := note.ParseNote("E2")
	highest, _ := note.ParseNote("E4")
	p := newTestPipeline(t, lowest, highest)

	res := p.Process(utils.GenerateSineWave(2048, 44100, 880, 0.5))
	if res.Status != pitch.OutOfRange {
		t.Errorf("Status = %v, want out_of_range", res.Status)
	}
	if !res.Estimate.HasPitch() {
		t.Error("estimate should still carry the detected pitch")
	}
}

func TestNewPipelineMismatch(t *testing.T) {
	t.Parallel()
	cond, err := analysis.NewConditioner(4096, 44100, analysis.ConditionerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	est, err := pitch.New(pitch.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	mapper, err := note.NewMapper(440, note.DefaultLowest, note.DefaultHighest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPipeline(cond, est, mapper); err == nil {
		t.Error("expected frame size mismatch error")
	}
}

func TestDisplayLoadStore(t *testing.T) {
	t.Parallel()
	var d Display
	if _, ok := d.Load(); ok {
		t.Fatal("Load before Store reported a reading")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 10000; i++ {
			r := Reading{Status: pitch.Pitched, Seq: i}
			r.FrequencyHz = float64(i)
			r.CentsOffset = -float64(i)
			d.Store(r)
		}
	}()
	go func() {
		defer wg.Done()
		var last uint64
		for range 10000 {
			r, ok := d.Load()
			if !ok {
				continue
			}
			if r.FrequencyHz != float64(r.Seq) || r.CentsOffset != -float64(r.Seq) {
				t.Errorf("torn reading: %+v", r)
				return
			}
			if r.Seq < last {
				t.Errorf("sequence went backwards: %d after %d", r.Seq, last)
				return
			}
			last = r.Seq
		}
	}()
	wg.Wait()
}

func BenchmarkPipelineProcess(b *testing.B) {
	p := newTestPipeline(b, note.DefaultLowest, note.DefaultHighest)
	frame := utils.GeneratePluck(2048, 44100, 110, 8, 0.5)
	b.ReportAllocs()
	for b.Loop() {
		p.Process(frame)
	}
}
