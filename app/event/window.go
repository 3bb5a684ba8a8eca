package event

import (
	"time"
)

const DefaultWindowDays = 90

// Window is the forward-looking horizon of one run. Past events are inside
// the window; pruning them is the storage layer's business.
type Window struct {
	Now  time.Time
	Days int
}

func NewWindow(now time.Time, days int) Window {
	return Window{Now: now, Days: days}
}

func (w Window) Cutoff() time.Time {
	return w.Now.Add(time.Duration(w.Days) * 24 * time.Hour)
}

// Contains reports whether start is at or before the cutoff.
func (w Window) Contains(start time.Time) bool {
	return !start.After(w.Cutoff())
}
