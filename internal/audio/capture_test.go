// SPDX-License-Identifier: MIT
package audio

import (
	"testing"
	"time"

	"tuner/internal/exchange"

	"github.com/gordonklaus/portaudio"
)

const (
	testSampleRate = 44100
	testFrameSize  = 256
)

func newTestCapture(channels int, delay time.Duration) (*Capture, *exchange.Exchange) {
	c := newCapture(CaptureConfig{
		SampleRate:   testSampleRate,
		FrameSize:    testFrameSize,
		Channels:     channels,
		StartupDelay: delay,
	})
	ex := exchange.New(testFrameSize)
	c.sink.Store(ex)
	return c, ex
}

func interleaved(channels int) []float32 {
	in := make([]float32, testFrameSize*channels)
	for i := range testFrameSize {
		for ch := range channels {
			in[i*channels+ch] = float32(ch*1000 + i)
		}
	}
	return in
}

func TestCaptureKeepsFirstChannel(t *testing.T) {
	for _, channels := range []int{1, 2, 4} {
		c, ex := newTestCapture(channels, 0)
		c.onInput(interleaved(channels), portaudio.StreamCallbackTimeInfo{}, 0)

		frame, ok := ex.Collect()
		if !ok {
			t.Fatalf("%d channels: no frame published", channels)
		}
		for i, v := range frame {
			if v != float32(i) {
				t.Fatalf("%d channels: sample %d = %v, want %v", channels, i, v, float32(i))
			}
		}
	}
}

func TestCaptureCountsFlags(t *testing.T) {
	c, _ := newTestCapture(1, 0)
	in := make([]float32, testFrameSize)

	c.onInput(in, portaudio.StreamCallbackTimeInfo{}, 0)
	c.onInput(in, portaudio.StreamCallbackTimeInfo{}, portaudio.InputOverflow)
	c.onInput(in, portaudio.StreamCallbackTimeInfo{}, portaudio.InputUnderflow|portaudio.InputOverflow)

	got := c.Stats()
	want := Stats{Callbacks: 3, InputOverflows: 2, InputUnderflows: 1}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestCaptureStartupDelay(t *testing.T) {
	// 20 ms at 44.1 kHz is 882 samples, so four 256-sample callbacks.
	c, ex := newTestCapture(1, 20*time.Millisecond)
	in := make([]float32, testFrameSize)

	for range 4 {
		c.onInput(in, portaudio.StreamCallbackTimeInfo{}, 0)
	}
	if _, ok := ex.Collect(); ok {
		t.Fatal("frame published during startup delay")
	}
	c.onInput(in, portaudio.StreamCallbackTimeInfo{}, 0)
	if _, ok := ex.Collect(); !ok {
		t.Fatal("no frame published after startup delay")
	}
	if d := c.Stats().Discarded; d != 4 {
		t.Errorf("Discarded = %d, want 4", d)
	}
}

func TestCaptureWithoutSink(t *testing.T) {
	c := newCapture(CaptureConfig{SampleRate: testSampleRate, FrameSize: testFrameSize, Channels: 1})
	c.onInput(make([]float32, testFrameSize), portaudio.StreamCallbackTimeInfo{}, 0)
	if c.Stats().Callbacks != 1 {
		t.Error("callback not counted")
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}

func TestCaptureCallbackZeroAllocations(t *testing.T) {
	c, ex := newTestCapture(2, 0)
	in := interleaved(2)

	allocs := testing.AllocsPerRun(100, func() {
		c.onInput(in, portaudio.StreamCallbackTimeInfo{}, 0)
		ex.Collect()
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in capture callback, got %.1f", allocs)
	}
}

func TestStatsSub(t *testing.T) {
	a := Stats{Callbacks: 10, InputOverflows: 3, InputUnderflows: 1, Discarded: 2}
	b := Stats{Callbacks: 4, InputOverflows: 1, Discarded: 2}
	want := Stats{Callbacks: 6, InputOverflows: 2, InputUnderflows: 1}
	if got := a.Sub(b); got != want {
		t.Errorf("Sub = %+v, want %+v", got, want)
	}
}

func BenchmarkCaptureCallback(b *testing.B) {
	c, _ := newTestCapture(2, 0)
	in := interleaved(2)
	b.ReportAllocs()
	for b.Loop() {
		c.onInput(in, portaudio.StreamCallbackTimeInfo{}, 0)
	}
}
