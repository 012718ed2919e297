package metrics

import "time"

// Recorder defines observability hooks for the control loop.
type Recorder interface {
	SetTemperature(celsius float64)
	SetSetpoint(celsius float64)
	SetRunning(running bool)
	SetHeater(on bool)
	SetOnTime(d time.Duration)
	SetPIDTerms(p, i, d float64)
	IncWindow(manual bool)
	IncTickError(kind string)
	IncCommand(command string)
	ObserveTickDuration(d time.Duration)
	IncAutotuneAttempt(result string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) SetTemperature(float64)                {}
func (NoopRecorder) SetSetpoint(float64)                   {}
func (NoopRecorder) SetRunning(bool)                       {}
func (NoopRecorder) SetHeater(bool)                        {}
func (NoopRecorder) SetOnTime(time.Duration)               {}
func (NoopRecorder) SetPIDTerms(float64, float64, float64) {}
func (NoopRecorder) IncWindow(bool)                        {}
func (NoopRecorder) IncTickError(string)                   {}
func (NoopRecorder) IncCommand(string)                     {}
func (NoopRecorder) ObserveTickDuration(time.Duration)     {}
func (NoopRecorder) IncAutotuneAttempt(string)             {}
