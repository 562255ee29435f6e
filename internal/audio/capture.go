// SPDX-License-Identifier: MIT
/*
Package audio delivers microphone or file audio as mono float32 frames.

Capture wraps a PortAudio input stream. Its callback:
  - keeps channel 0 of the interleaved input
  - publishes the frame into the exchange without blocking
  - counts callbacks and over/underflow flags with atomics

The callback never logs, locks or allocates; counters are read and
reported from the processing side via Stats.
*/
package audio

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"tuner/internal/exchange"

	"github.com/gordonklaus/portaudio"
)

// Stats counts capture events since Start.
type Stats struct {
	Callbacks       uint64
	InputOverflows  uint64
	InputUnderflows uint64
	Discarded       uint64 // frames dropped during the startup delay
}

// Sub returns the counts accumulated since prev.
func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		Callbacks:       s.Callbacks - prev.Callbacks,
		InputOverflows:  s.InputOverflows - prev.InputOverflows,
		InputUnderflows: s.InputUnderflows - prev.InputUnderflows,
		Discarded:       s.Discarded - prev.Discarded,
	}
}

// CaptureConfig selects the device and stream format.
type CaptureConfig struct {
	DeviceID   int
	SampleRate float64
	FrameSize  int // frames per buffer, also the analysis frame
	Channels   int
	LowLatency bool

	// StartupDelay discards frames delivered right after the stream
	// starts, while the input settles.
	StartupDelay time.Duration
}

// Capture is a live input source.
type Capture struct {
	cfg     CaptureConfig
	device  *portaudio.DeviceInfo
	latency time.Duration
	stream  *portaudio.Stream

	sink   atomic.Pointer[exchange.Exchange]
	mono   []float32 // channel 0 of the current buffer
	warmup uint64    // callbacks to discard after Start

	callbacks  atomic.Uint64
	overflows  atomic.Uint64
	underflows atomic.Uint64
	discarded  atomic.Uint64
}

// NewCapture resolves the input device. PortAudio must be initialised.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.FrameSize < 1 {
		return nil, fmt.Errorf("frame size must be positive, got %d", cfg.FrameSize)
	}
	if !(cfg.SampleRate > 0) {
		return nil, fmt.Errorf("sample rate must be positive, got %g", cfg.SampleRate)
	}
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("channel count must be positive, got %d", cfg.Channels)
	}

	device, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if cfg.Channels > device.MaxInputChannels {
		return nil, fmt.Errorf("device %s supports %d input channels, %d requested",
			device.Name, device.MaxInputChannels, cfg.Channels)
	}

	c := newCapture(cfg)
	c.device = device
	if cfg.LowLatency {
		c.latency = device.DefaultLowInputLatency
	} else {
		c.latency = device.DefaultHighInputLatency
	}
	return c, nil
}

func newCapture(cfg CaptureConfig) *Capture {
	c := &Capture{
		cfg:  cfg,
		mono: make([]float32, cfg.FrameSize),
	}
	if cfg.StartupDelay > 0 {
		frames := cfg.StartupDelay.Seconds() * cfg.SampleRate / float64(cfg.FrameSize)
		c.warmup = uint64(math.Ceil(frames))
	}
	return c
}

// Device returns the resolved input device.
func (c *Capture) Device() *portaudio.DeviceInfo { return c.device }

// Start opens the stream and begins publishing frames into ex.
func (c *Capture) Start(ex *exchange.Exchange) error {
	if c.stream != nil {
		return errors.New("capture already started")
	}
	c.sink.Store(ex)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: c.cfg.Channels,
			Device:   c.device,
			Latency:  c.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: c.cfg.FrameSize,
		SampleRate:      c.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, c.onInput)
	if err != nil {
		return fmt.Errorf("failed to open input stream on %s: %w", c.device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	c.stream = stream
	return nil
}

// Stop halts the stream. After Stop returns the callback is not running
// and will not run again. Calling Stop without Start is a no-op.
func (c *Capture) Stop() error {
	if c.stream == nil {
		return nil
	}
	stream := c.stream
	c.stream = nil
	c.sink.Store(nil)

	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close input stream: %w", err)
	}
	return nil
}

// Stats returns the event counters.
func (c *Capture) Stats() Stats {
	return Stats{
		Callbacks:       c.callbacks.Load(),
		InputOverflows:  c.overflows.Load(),
		InputUnderflows: c.underflows.Load(),
		Discarded:       c.discarded.Load(),
	}
}

// onInput is the PortAudio callback.
// Performance Critical:
// - Uses pre-allocated buffers only
// - Never blocks: the exchange publish is a copy and an atomic swap
func (c *Capture) onInput(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	n := c.callbacks.Add(1)
	if flags&portaudio.InputOverflow != 0 {
		c.overflows.Add(1)
	}
	if flags&portaudio.InputUnderflow != 0 {
		c.underflows.Add(1)
	}
	if n <= c.warmup {
		c.discarded.Add(1)
		return
	}

	ex := c.sink.Load()
	if ex == nil {
		return
	}

	channels := c.cfg.Channels
	if channels == 1 {
		ex.Publish(in)
		return
	}
	frames := min(len(in)/channels, len(c.mono))
	for i := range frames {
		c.mono[i] = in[i*channels]
	}
	clear(c.mono[frames:])
	ex.Publish(c.mono)
}
