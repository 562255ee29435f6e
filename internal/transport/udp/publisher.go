// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"sync"
	"time"

	applog "tuner/internal/log"
	"tuner/internal/tuner"
)

// ReadingSource supplies the latest reading. *tuner.Display implements it.
type ReadingSource interface {
	Load() (tuner.Reading, bool)
}

// ReadingSender delivers one reading. *UDPSender implements it.
type ReadingSender interface {
	SendReading(r tuner.Reading) error
}

// UDPPublisher periodically fetches the latest reading and hands it to a
// ReadingSender. It runs in a separate goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   ReadingSender
	source   ReadingSource
	interval time.Duration

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sent    uint64 // Readings delivered without error.
	lastSeq uint64 // Reading sequence last sent, to skip unchanged readings.
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// If the provided interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender ReadingSender, source ReadingSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: reading source cannot be nil")
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &UDPPublisher{
		sender:   sender,
		source:   source,
		interval: interval,
	}, nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Local copies keep the goroutine off p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publishLatest()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		applog.Debugf("UDPPublisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: stopped after %d readings", p.sent)
	return nil
}

// publishLatest sends the current reading unless it was already sent.
func (p *UDPPublisher) publishLatest() {
	r, ok := p.source.Load()
	if !ok || r.Seq == p.lastSeq {
		return
	}

	if err := p.sender.SendReading(r); err != nil {
		applog.Debugf("UDPPublisher: Reading %d not sent: %v", r.Seq, err)
		return
	}
	p.lastSeq = r.Seq
	p.sent++
}

// Close implements the io.Closer interface. It gracefully stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
