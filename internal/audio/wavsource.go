// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"tuner/internal/exchange"

	"github.com/go-audio/wav"
)

// Clip is decoded mono audio.
type Clip struct {
	Samples    []float32
	SampleRate float64
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / c.SampleRate * float64(time.Second))
}

// Frames splits the clip into frames of size samples, starting every hop
// samples. The last partial frame is dropped.
func (c *Clip) Frames(size, hop int) [][]float32 {
	if size < 1 || hop < 1 {
		return nil
	}
	var frames [][]float32
	for start := 0; start+size <= len(c.Samples); start += hop {
		frames = append(frames, c.Samples[start:start+size])
	}
	return frames
}

// DecodeWAV reads a PCM WAV stream and keeps channel 0, scaled to [-1, 1).
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("not a valid WAV file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV data: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return nil, errors.New("WAV file has no usable format")
	}

	bitDepth := int(d.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	channels := buf.Format.NumChannels
	scale := 1 / float32(int64(1)<<(bitDepth-1))
	// 8-bit PCM is unsigned, wider samples are signed.
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}

	samples := make([]float32, len(buf.Data)/channels)
	for i := range samples {
		samples[i] = float32(buf.Data[i*channels]-offset) * scale
	}
	return &Clip{Samples: samples, SampleRate: float64(buf.Format.SampleRate)}, nil
}

// LoadWAV decodes the WAV file at path.
func LoadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	clip, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

// FileSource replays a clip into an exchange one frame per frame period,
// as a microphone would deliver it.
type FileSource struct {
	clip      *Clip
	frameSize int

	// Interval is the pause between frames. It defaults to the real-time
	// frame period.
	Interval time.Duration
	// Loop restarts the clip when it ends instead of finishing.
	Loop bool

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	frames   uint64
}

// NewFileSource prepares a replay of clip in frames of frameSize samples.
func NewFileSource(clip *Clip, frameSize int) (*FileSource, error) {
	if frameSize < 1 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}
	if len(clip.Samples) < frameSize {
		return nil, fmt.Errorf("clip has %d samples, shorter than one frame of %d", len(clip.Samples), frameSize)
	}
	return &FileSource{
		clip:      clip,
		frameSize: frameSize,
		Interval:  time.Duration(float64(frameSize) / clip.SampleRate * float64(time.Second)),
		done:      make(chan struct{}),
	}, nil
}

// Clip returns the clip being replayed.
func (s *FileSource) Clip() *Clip { return s.clip }

// Start begins publishing frames into ex from a background goroutine.
func (s *FileSource) Start(ex *exchange.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan != nil {
		return errors.New("file source already started")
	}
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.run(ex)
	return nil
}

func (s *FileSource) run(ex *exchange.Exchange) {
	defer s.wg.Done()
	defer close(s.done)

	ticker := time.NewTicker(max(s.Interval, time.Microsecond))
	defer ticker.Stop()

	frames := s.clip.Frames(s.frameSize, s.frameSize)
	for i := 0; ; i++ {
		if i == len(frames) {
			if !s.Loop {
				return
			}
			i = 0
		}
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ex.Publish(frames[i])
			s.mu.Lock()
			s.frames++
			s.mu.Unlock()
		}
	}
}

// Stop halts playback and waits for the publishing goroutine to exit.
func (s *FileSource) Stop() error {
	s.mu.Lock()
	stopChan := s.stopChan
	s.mu.Unlock()
	if stopChan == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(stopChan) })
	s.wg.Wait()
	return nil
}

// Done is closed once every frame has been published or Stop was called.
func (s *FileSource) Done() <-chan struct{} { return s.done }

// Stats reports published frames as callbacks, for parity with Capture.
func (s *FileSource) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Callbacks: s.frames}
}
