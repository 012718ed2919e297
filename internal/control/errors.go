package control

import "errors"

var (
	// ErrTemperatureSource means the temperature file could not be stat'ed or
	// read. Temperature is mandatory, so the current control decision is
	// abandoned.
	ErrTemperatureSource = errors.New("temperature source unavailable")
	// ErrMalformedTemperature means the temperature file did not hold a number.
	ErrMalformedTemperature = errors.New("malformed temperature")
	// ErrSetpointSource means the setpoint file could not be stat'ed or read
	// after a setpoint had already been established.
	ErrSetpointSource = errors.New("setpoint source unavailable")
	// ErrMalformedSetpoint means the setpoint file did not hold a number.
	ErrMalformedSetpoint = errors.New("malformed setpoint")
	// ErrInvalidSetpoint rejects a non-positive or non-numeric setpoint before
	// anything is persisted.
	ErrInvalidSetpoint = errors.New("invalid setpoint")
	// ErrNoSetpoint is returned by Start when no target has been set.
	ErrNoSetpoint = errors.New("no setpoint configured")
	// ErrPersistence wraps a failed atomic write. In-memory state is left
	// unchanged when it is returned from a setter.
	ErrPersistence = errors.New("persistence failed")
	// ErrOutputExceedsWindow halts control: the algorithm produced an on time
	// outside the duty-cycle window, meaning output limits and window size
	// are inconsistent.
	ErrOutputExceedsWindow = errors.New("controller output exceeds window")
	// ErrNoWater is returned when heating or autotuning is refused because the
	// water sensor does not detect liquid.
	ErrNoWater = errors.New("no water detected")
	// ErrAutotuneAborted ends an autotune session whose control was stopped
	// underneath it, by a stop command or the water interlock.
	ErrAutotuneAborted = errors.New("autotune aborted: control stopped")
)

// errorKind classifies an error for metrics labels.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrOutputExceedsWindow):
		return "output"
	case errors.Is(err, ErrTemperatureSource), errors.Is(err, ErrMalformedTemperature):
		return "temperature"
	case errors.Is(err, ErrSetpointSource), errors.Is(err, ErrMalformedSetpoint), errors.Is(err, ErrInvalidSetpoint):
		return "setpoint"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrNoWater):
		return "water"
	default:
		return "other"
	}
}
