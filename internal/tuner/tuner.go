// SPDX-License-Identifier: MIT
/*
Package tuner runs a tuning session: frames published by a capture source
are collected from a latest-wins exchange, analysed, smoothed and handed
to display collaborators.

Threading:
  - the source publishes from its own context and never waits on the tuner
  - Run owns the pipeline and smoother and is the only writer of Display
  - transports and the Display are read at their own cadence
*/
package tuner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tuner/internal/audio"
	"tuner/internal/exchange"
	applog "tuner/internal/log"
	"tuner/internal/note"
	"tuner/internal/pitch"
	"tuner/internal/transport"
)

// Source delivers frames into an exchange between Start and Stop.
type Source interface {
	Start(ex *exchange.Exchange) error
	Stop() error
}

// Recorder receives per-frame measurements.
type Recorder interface {
	RecordFrame(ctx context.Context, status pitch.Status, elapsed time.Duration)
}

// Config holds the session settings.
type Config struct {
	PollInterval      time.Duration // longest single wait for a frame
	StarvationTimeout time.Duration // gap after which silence is reported
	SendInterval      time.Duration // minimum spacing of transport sends

	MedianWindow    int
	SmoothingFactor float64
	JumpResetCents  float64
}

const (
	DefaultPollInterval      = 50 * time.Millisecond
	DefaultStarvationTimeout = 500 * time.Millisecond
	DefaultSendInterval      = 33 * time.Millisecond
	DefaultMedianWindow      = 5
	DefaultSmoothingFactor   = 0.5
	DefaultJumpResetCents    = 100

	statsLogInterval = 5 * time.Second
)

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:      DefaultPollInterval,
		StarvationTimeout: DefaultStarvationTimeout,
		SendInterval:      DefaultSendInterval,
		MedianWindow:      DefaultMedianWindow,
		SmoothingFactor:   DefaultSmoothingFactor,
		JumpResetCents:    DefaultJumpResetCents,
	}
}

// Option configures optional collaborators of a Tuner.
type Option func(*Tuner)

// WithTransports adds display collaborators fed at SendInterval.
func WithTransports(ts ...transport.Transport) Option {
	return func(t *Tuner) { t.transports = append(t.transports, ts...) }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(t *Tuner) { t.recorder = r }
}

// Tuner is one tuning session. It owns the exchange between the source
// and the processing loop.
type Tuner struct {
	cfg      Config
	pipeline *Pipeline
	source   Source
	exchange *exchange.Exchange
	display  *Display
	smoother *Smoother

	transports []transport.Transport
	recorder   Recorder

	seq        uint64
	lastSend   time.Time
	lastStatus pitch.Status

	lastStats     audio.Stats
	lastStatsTime time.Time

	now func() time.Time
}

// New builds a session. The exchange is sized to the pipeline's frame.
func New(cfg Config, pipeline *Pipeline, source Source, opts ...Option) (*Tuner, error) {
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", cfg.PollInterval)
	}
	if cfg.SmoothingFactor < 0 || cfg.SmoothingFactor >= 1 {
		return nil, fmt.Errorf("smoothing factor must be in [0, 1), got %g", cfg.SmoothingFactor)
	}
	if cfg.MedianWindow < 1 {
		return nil, fmt.Errorf("median window must be at least 1, got %d", cfg.MedianWindow)
	}

	t := &Tuner{
		cfg:        cfg,
		pipeline:   pipeline,
		source:     source,
		exchange:   exchange.New(pipeline.FrameSize()),
		display:    &Display{},
		smoother:   NewSmoother(cfg.MedianWindow, cfg.SmoothingFactor, cfg.JumpResetCents),
		lastStatus: -1,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Display returns the cell holding the latest reading.
func (t *Tuner) Display() *Display { return t.display }

// Exchange returns the session's frame exchange.
func (t *Tuner) Exchange() *exchange.Exchange { return t.exchange }

// Run starts the source and processes frames until ctx is cancelled or a
// finite source runs dry. On the way out the source is stopped first,
// then the loop finishes its current frame, and the exchange is released
// last.
func (t *Tuner) Run(ctx context.Context) error {
	if err := t.source.Start(t.exchange); err != nil {
		t.exchange.Close()
		return fmt.Errorf("failed to start audio source: %w", err)
	}
	applog.Infof("Tuner: started, frame %d samples at %g Hz", t.pipeline.FrameSize(), t.pipeline.SampleRate())

	var (
		stopOnce sync.Once
		stopErr  error
	)
	stop := func() {
		stopOnce.Do(func() { stopErr = t.source.Stop() })
	}
	// Stop the hardware as soon as cancellation arrives rather than when
	// the loop next looks at ctx.
	release := context.AfterFunc(ctx, stop)
	defer release()

	var sourceDone <-chan struct{}
	if d, ok := t.source.(interface{ Done() <-chan struct{} }); ok {
		sourceDone = d.Done()
	}

	lastFrame := t.now()
	t.lastStatsTime = lastFrame
	starved := false

	for ctx.Err() == nil {
		frame, ok := t.exchange.CollectWait(ctx, t.cfg.PollInterval)
		now := t.now()
		if !ok {
			if sourceDone != nil && isClosed(sourceDone) {
				// The final publication can land between the wait and
				// the close.
				if frame, ok := t.exchange.Collect(); ok {
					t.process(ctx, frame, now)
				}
				applog.Infof("Tuner: source finished")
				break
			}
			if !starved && t.cfg.StarvationTimeout > 0 && now.Sub(lastFrame) >= t.cfg.StarvationTimeout {
				starved = true
				applog.Debugf("Tuner: no frames for %v, reporting silence", now.Sub(lastFrame))
				t.smoother.Reset()
				t.publish(Reading{Status: pitch.NoSignal}, now)
			}
			t.logStats(now)
			continue
		}
		lastFrame = now
		starved = false

		t.process(ctx, frame, now)
		t.logStats(now)
	}

	stop()
	t.exchange.Close()

	if stopErr != nil {
		return fmt.Errorf("failed to stop audio source: %w", stopErr)
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	applog.Infof("Tuner: stopped after %d readings", t.seq)
	return nil
}

// process runs one frame through the pipeline and publishes the result.
func (t *Tuner) process(ctx context.Context, frame []float32, now time.Time) {
	start := time.Now()
	res := t.pipeline.Process(frame)
	if t.recorder != nil {
		t.recorder.RecordFrame(ctx, res.Status, time.Since(start))
	}

	r := Reading{Status: res.Status, Confidence: res.Estimate.Confidence}
	r.AmplitudeRMS = res.Estimate.AmplitudeRMS

	switch res.Status {
	case pitch.Pitched:
		r.Reading = t.smooth(res)
	case pitch.Ambiguous:
		applog.Debugf("Tuner: ambiguous frame, confidence %.2f", res.Estimate.Confidence)
	default:
		t.smoother.Reset()
	}
	r.Timestamp = now
	t.publish(r, now)
}

// smooth maps the smoothed frequency back to a note. If smoothing pushes
// it outside the playable range the raw reading is kept.
func (t *Tuner) smooth(res Result) note.Reading {
	freq := t.smoother.Update(res.Reading.FrequencyHz)
	smoothed, err := t.pipeline.Mapper().Map(freq, res.Reading.AmplitudeRMS)
	if err != nil {
		return res.Reading
	}
	return smoothed
}

// publish stores r as the current reading and forwards it to the
// transports when the send interval has elapsed or the status changed.
func (t *Tuner) publish(r Reading, now time.Time) {
	t.seq++
	r.Seq = t.seq
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	t.display.Store(r)

	if len(t.transports) == 0 {
		return
	}
	if r.Status == t.lastStatus && now.Sub(t.lastSend) < t.cfg.SendInterval {
		return
	}
	t.lastSend = now
	t.lastStatus = r.Status
	for _, tr := range t.transports {
		if err := tr.Send(r); err != nil {
			applog.Warnf("Tuner: transport send failed: %v", err)
		}
	}
}

// logStats reports hardware over/underflows seen since the last report.
// The capture callback only counts; logging happens here.
func (t *Tuner) logStats(now time.Time) {
	src, ok := t.source.(interface{ Stats() audio.Stats })
	if !ok || now.Sub(t.lastStatsTime) < statsLogInterval {
		return
	}
	stats := src.Stats()
	d := stats.Sub(t.lastStats)
	if d.InputOverflows > 0 || d.InputUnderflows > 0 {
		applog.Warnf("Tuner: %d input overflows, %d input underflows in the last %v",
			d.InputOverflows, d.InputUnderflows, now.Sub(t.lastStatsTime).Round(time.Second))
	}
	ex := t.exchange.Stats()
	applog.Debugf("Tuner: %d callbacks, %d frames published, %d replaced, %d collected",
		stats.Callbacks, ex.Published, ex.Replaced, ex.Collected)
	t.lastStats = stats
	t.lastStatsTime = now
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
