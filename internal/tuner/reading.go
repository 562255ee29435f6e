// SPDX-License-Identifier: MIT
package tuner

import (
	"fmt"
	"sync/atomic"

	"tuner/internal/note"
	"tuner/internal/pitch"
)

// Reading is what display collaborators receive. When Status is not
// Pitched the embedded note fields are zero apart from the amplitude and
// timestamp, which makes the reading an explicit silence marker.
type Reading struct {
	Status pitch.Status `json:"status"`
	note.Reading
	Confidence float64 `json:"confidence"`
	Seq        uint64  `json:"seq"`
}

// HasNote reports whether the reading carries a note.
func (r Reading) HasNote() bool {
	return r.Status == pitch.Pitched && r.Note != ""
}

func (r Reading) String() string {
	if !r.HasNote() {
		return fmt.Sprintf("#%d %s (rms %.4f)", r.Seq, r.Status, r.AmplitudeRMS)
	}
	return fmt.Sprintf("#%d %s (confidence %.2f)", r.Seq, r.Reading.String(), r.Confidence)
}

// Display holds the most recently completed reading. One goroutine
// stores, any number load; a load never blocks and never observes a
// partially written reading.
type Display struct {
	current atomic.Pointer[Reading]
}

// Store replaces the current reading.
func (d *Display) Store(r Reading) {
	d.current.Store(&r)
}

// Load returns the current reading, or false before the first Store.
func (d *Display) Load() (Reading, bool) {
	p := d.current.Load()
	if p == nil {
		return Reading{}, false
	}
	return *p, true
}
