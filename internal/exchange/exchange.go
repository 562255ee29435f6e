// SPDX-License-Identifier: MIT
/*
Package exchange hands audio frames from the real-time capture callback to
the processing goroutine.

The Exchange is a latest-wins single slot built as a triple buffer:

  - the producer owns the back buffer and fills it,
  - the consumer owns the front buffer and reads it,
  - the middle buffer is swapped atomically by both sides.

Publishing swaps the freshly written back buffer into the middle slot and
marks it fresh. Collecting swaps the front buffer with a fresh middle
slot. A frame that was never collected is simply overwritten by the next
publication, so the consumer only ever sees the most recent frame and the
producer never waits on the consumer.

Thread Safety:
  - exactly one producer goroutine may call Publish
  - exactly one consumer goroutine may call Collect and CollectWait
  - Stats may be called from anywhere
*/
package exchange

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	indexMask = 0b011
	freshBit  = 0b100
)

// Stats reports cumulative exchange counters.
type Stats struct {
	Published uint64 // frames handed to Publish while open
	Replaced  uint64 // publications overwritten before they were collected
	Collected uint64 // frames delivered to the consumer
}

// Exchange is a single-producer, single-consumer latest-wins frame slot.
type Exchange struct {
	size   int
	frames [3][]float32

	// middle holds the index of the shared buffer plus freshBit when it
	// carries a publication that has not been collected yet.
	middle atomic.Uint32
	back   int // producer owned
	front  int // consumer owned

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	published atomic.Uint64
	replaced  atomic.Uint64
	collected atomic.Uint64
}

// New allocates an exchange for frames of frameSize samples. All storage
// is allocated here so that Publish never allocates.
func New(frameSize int) *Exchange {
	if frameSize < 1 {
		frameSize = 1
	}
	x := &Exchange{
		size:   frameSize,
		back:   0,
		front:  2,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for i := range x.frames {
		x.frames[i] = make([]float32, frameSize)
	}
	x.middle.Store(1)
	return x
}

// FrameSize returns the number of samples per frame.
func (x *Exchange) FrameSize() int {
	return x.size
}

// Publish copies frame into the exchange, replacing any publication that
// has not been collected yet, and reports whether one was replaced.
// Short frames are zero padded and long frames truncated. Publish never
// blocks and never allocates; after Close it does nothing.
func (x *Exchange) Publish(frame []float32) (replaced bool) {
	if x.closed.Load() {
		return false
	}

	dst := x.frames[x.back]
	n := copy(dst, frame)
	clear(dst[n:])

	prev := x.middle.Swap(uint32(x.back) | freshBit)
	x.back = int(prev & indexMask)
	x.published.Add(1)

	replaced = prev&freshBit != 0
	if replaced {
		x.replaced.Add(1)
	}

	select {
	case x.notify <- struct{}{}:
	default:
	}
	return replaced
}

// Collect returns the most recent publication, or false when nothing was
// published since the previous collection. The returned slice belongs to
// the caller until its next call to Collect or CollectWait.
func (x *Exchange) Collect() ([]float32, bool) {
	if x.closed.Load() || x.middle.Load()&freshBit == 0 {
		return nil, false
	}
	// Only the consumer clears freshBit, so the slot is still fresh here.
	prev := x.middle.Swap(uint32(x.front))
	x.front = int(prev & indexMask)
	x.collected.Add(1)
	return x.frames[x.front], true
}

// CollectWait is Collect for a consumer that prefers sleeping to spinning.
// It waits up to timeout for a publication and returns early when ctx is
// done or the exchange is closed.
func (x *Exchange) CollectWait(ctx context.Context, timeout time.Duration) ([]float32, bool) {
	if frame, ok := x.Collect(); ok {
		return frame, true
	}
	if timeout <= 0 {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-x.notify:
			if frame, ok := x.Collect(); ok {
				return frame, true
			}
			// Stale notification for a frame already collected by the
			// non-blocking path above; keep waiting.
		case <-timer.C:
			return x.Collect()
		case <-ctx.Done():
			return nil, false
		case <-x.done:
			return nil, false
		}
	}
}

// Close releases the frame storage and discards any pending frame. It must
// only be called once the producer has stopped publishing. Close is
// idempotent.
func (x *Exchange) Close() {
	x.closeOnce.Do(func() {
		x.closed.Store(true)
		close(x.done)
		x.middle.Store(uint32(x.middle.Load() & indexMask))
		for i := range x.frames {
			x.frames[i] = nil
		}
	})
}

// Closed reports whether Close has been called.
func (x *Exchange) Closed() bool {
	return x.closed.Load()
}

// Stats returns a snapshot of the exchange counters.
func (x *Exchange) Stats() Stats {
	return Stats{
		Published: x.published.Load(),
		Replaced:  x.replaced.Load(),
		Collected: x.collected.Load(),
	}
}
