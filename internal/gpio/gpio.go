// Package gpio provides the heater and pump outputs and the water level input
// with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Output drives a single digital output in logical terms (true = ON).
type Output interface {
	// Set commands the output. Writing the current value is allowed.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Input reads a single digital input in logical terms.
type Input interface {
	// Read returns true when the input is active (for the water sensor:
	// liquid contact detected).
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Pins holds the BCM line offsets used by the controller.
type Pins struct {
	Heater int // relay for the heating element, active high
	Water  int // water level sensor, high = water detected
	Pump   int // circulation pump relay, active low
}

// idleLevel is the physical level at which a relay of the given polarity is
// de-energised. Released outputs are pulled to it.
func idleLevel(activeLow bool) int {
	if activeLow {
		return 1
	}
	return 0
}

// Default pin assignment (BCM numbering).
var DefaultPins = Pins{
	Heater: 23,
	Water:  24,
	Pump:   25,
}
