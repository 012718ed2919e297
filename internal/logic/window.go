package logic

import (
	"errors"
	"fmt"
	"time"
)

// ErrOnTimeExceedsWindow reports a controller output that does not fit in the
// duty-cycle window. It means the output limits and the window size disagree
// and must never be clamped away.
var ErrOnTimeExceedsWindow = errors.New("on time exceeds window size")

// Window is the sliding duty-cycle window. The heater is on for the first
// OnTime of every Size-long window starting at Start.
type Window struct {
	Start  time.Time
	Size   time.Duration
	OnTime time.Duration
}

// NewWindow returns an empty window (heater off throughout) starting at start.
func NewWindow(start time.Time, size time.Duration) Window {
	return Window{Start: start, Size: size}
}

// HeaterOn reports whether now falls inside [Start, Start+OnTime).
func (w Window) HeaterOn(now time.Time) bool {
	if now.Before(w.Start) {
		return false
	}
	return now.Before(w.Start.Add(w.OnTime))
}

// Expiring reports whether the window ends before the next tick would run,
// i.e. now+interval > Start+Size.
func (w Window) Expiring(now time.Time, interval time.Duration) bool {
	return now.Add(interval).After(w.Start.Add(w.Size))
}

// Roll starts a new window at now with the given on time. The window is left
// untouched and an error wrapping ErrOnTimeExceedsWindow is returned when
// onTime is outside [0, Size].
func (w *Window) Roll(now time.Time, onTime time.Duration) error {
	if onTime < 0 || onTime > w.Size {
		return fmt.Errorf("%w: on=%v window=%v", ErrOnTimeExceedsWindow, onTime, w.Size)
	}
	w.Start = now
	w.OnTime = onTime
	return nil
}

// OnTimeFromOutput converts a controller output, expressed in milliseconds of
// heating per window, into a duration.
func OnTimeFromOutput(outputMs float64) time.Duration {
	return time.Duration(outputMs * float64(time.Millisecond))
}

// Due reports whether more than interval has passed since last. A zero
// interval makes every call due.
func Due(now, last time.Time, interval time.Duration) bool {
	return now.Sub(last) > interval || interval <= 0
}
