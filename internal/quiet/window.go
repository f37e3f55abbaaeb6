// Package quiet implements the quiet-hours curfew: a per-chat daily
// time-of-day window during which ordinary members cannot post. A background
// scheduler recomputes each chat's state from the wall clock and posts or
// retracts a curfew announcement on transitions.
package quiet

import (
	"fmt"
	"time"
)

// Window is a daily wall-clock window expressed in minutes since midnight.
// Start >= End means the window wraps past midnight (e.g. 22:00 -> 06:00).
type Window struct {
	Start int `json:"start"` // minutes since midnight, 0..1439
	End   int `json:"end"`   // minutes since midnight, 0..1439
}

// ParseClock parses a "HH:MM" string into minutes since midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("quiet: invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("quiet: clock %q out of range", s)
	}
	return h*60 + m, nil
}

// NewWindow builds a Window from "HH:MM" start and end strings.
func NewWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: s, End: e}, nil
}

// Contains reports whether t falls inside the window. Only the time of day
// matters; the date component is ignored. Windows with Start >= End span
// midnight: quiet iff now >= Start or now < End.
func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.Start < w.End {
		return w.Start <= m && m < w.End
	}
	return m >= w.Start || m < w.End
}

// String renders the window as "HH:MM-HH:MM" for logs and notices.
func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}
