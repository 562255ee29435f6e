package cmd

import (
	"bytes"
	"strings"
	"testing"

	"tuner/internal/audio"
	"tuner/internal/config"
	"tuner/internal/pitch"
	"tuner/pkg/utils"
)

func TestAnalyze(t *testing.T) {
	t.Parallel()
	const sr = 48000
	cfg := config.Default()
	size := cfg.Audio.BufferSize

	samples := utils.GenerateSineWave(4*size, sr, 110, 0.5)
	samples = append(samples, make([]float32, 2*size+100)...)
	clip := &audio.Clip{Samples: samples, SampleRate: sr}

	var out bytes.Buffer
	summary, err := Analyze(&out, clip, cfg)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if summary.Frames != 6 {
		t.Errorf("frames = %d, want 6", summary.Frames)
	}
	if summary.ByStatus[pitch.Pitched] != 4 || summary.ByStatus[pitch.NoSignal] != 2 {
		t.Errorf("statuses = %v", summary.ByStatus)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d lines, want header and 6 frames:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[1], "A2") || !strings.Contains(lines[1], "pitched") {
		t.Errorf("first frame line = %q", lines[1])
	}
	if !strings.Contains(lines[6], "no_signal") {
		t.Errorf("last frame line = %q", lines[6])
	}
	// The configured rate is left alone.
	if cfg.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("Analyze modified the caller's config: %v", cfg.Audio.SampleRate)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	short := &audio.Clip{Samples: make([]float32, 100), SampleRate: 44100}
	if _, err := Analyze(&bytes.Buffer{}, short, cfg); err == nil {
		t.Error("expected error for a clip shorter than one frame")
	}

	// At 192 kHz a 2048-sample frame cannot hold the 70 Hz period twice.
	slow := &audio.Clip{Samples: make([]float32, 8192), SampleRate: 192000}
	if _, err := Analyze(&bytes.Buffer{}, slow, cfg); err == nil {
		t.Error("expected error when the frame is too short for the rate")
	}
}
