package logic

import "time"

// StabilityState is the autotune gate state.
type StabilityState int

const (
	Unstable StabilityState = iota
	StablePending
	StableConfirmed
)

func (s StabilityState) String() string {
	switch s {
	case Unstable:
		return "UNSTABLE"
	case StablePending:
		return "STABLE_PENDING"
	case StableConfirmed:
		return "STABLE_CONFIRMED"
	default:
		return "UNKNOWN"
	}
}

// StabilityDetector certifies that a system has been continuously stable for
// a goal duration. It is fed the result of each stability check; any unstable
// observation restarts the clock.
type StabilityDetector struct {
	goal        time.Duration
	state       StabilityState
	stableSince time.Time
}

// NewStabilityDetector creates a detector that confirms after goal of
// unbroken stability.
func NewStabilityDetector(goal time.Duration) *StabilityDetector {
	return &StabilityDetector{goal: goal}
}

// Observe records one check result taken at now and returns the new state.
func (d *StabilityDetector) Observe(stable bool, now time.Time) StabilityState {
	if !stable {
		d.state = Unstable
		d.stableSince = time.Time{}
		return d.state
	}
	if d.state == Unstable {
		d.state = StablePending
		d.stableSince = now
	}
	return d.Check(now)
}

// Check promotes a pending detector to confirmed once the goal has elapsed,
// without needing a new check.
func (d *StabilityDetector) Check(now time.Time) StabilityState {
	if d.state == StablePending && now.Sub(d.stableSince) >= d.goal {
		d.state = StableConfirmed
	}
	return d.state
}

// State returns the current state.
func (d *StabilityDetector) State() StabilityState {
	return d.state
}

// StableSince returns when the current stable run began. ok is false while
// unstable.
func (d *StabilityDetector) StableSince() (since time.Time, ok bool) {
	if d.state == Unstable {
		return time.Time{}, false
	}
	return d.stableSince, true
}

// Reset returns the detector to Unstable.
func (d *StabilityDetector) Reset() {
	d.state = Unstable
	d.stableSince = time.Time{}
}
