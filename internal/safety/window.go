package safety

import "time"

// TimeWindow is a part of the day used to filter crimes by occurrence hour.
type TimeWindow string

const (
	WindowAll     TimeWindow = ""
	WindowAnyTime TimeWindow = "all"
	WindowDay     TimeWindow = "day"
	WindowEvening TimeWindow = "evening"
	WindowNight   TimeWindow = "night"

	// WindowAuto picks the window the trip departs in. See Resolve.
	WindowAuto TimeWindow = "auto"
)

// Valid reports whether w is a known window.
func (w TimeWindow) Valid() bool {
	switch w {
	case WindowAll, WindowAnyTime, WindowDay, WindowEvening, WindowNight, WindowAuto:
		return true
	}
	return false
}

// Contains reports whether t's local hour falls inside the window.
// Day is 06-18, evening 18-22 and night 22-06.
func (w TimeWindow) Contains(t time.Time) bool {
	h := t.Hour()
	switch w {
	case WindowDay:
		return h >= 6 && h < 18
	case WindowEvening:
		return h >= 18 && h < 22
	case WindowNight:
		return h >= 22 || h < 6
	default:
		return true
	}
}

// Resolve returns the concrete window for a trip departing at departure.
// WindowAuto becomes the window departure falls into, read in loc; every
// other window is returned unchanged.
func (w TimeWindow) Resolve(departure time.Time, loc *time.Location) TimeWindow {
	if w != WindowAuto {
		return w
	}
	if loc != nil {
		departure = departure.In(loc)
	}
	return WindowAt(departure)
}

// WindowAt returns the window that t falls into.
func WindowAt(t time.Time) TimeWindow {
	for _, w := range []TimeWindow{WindowDay, WindowEvening, WindowNight} {
		if w.Contains(t) {
			return w
		}
	}
	return WindowAll
}
