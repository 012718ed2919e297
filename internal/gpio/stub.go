//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(chipName string, pins Pins) (*RealBoard, error) {
	return nil, errUnsupported
}

// Heater is not implemented on non-Linux platforms.
func (b *RealBoard) Heater() Output { return nil }

// Pump is not implemented on non-Linux platforms.
func (b *RealBoard) Pump() Output { return nil }

// Water is not implemented on non-Linux platforms.
func (b *RealBoard) Water() Input { return nil }

// Close is not implemented on non-Linux platforms.
func (b *RealBoard) Close() error {
	return nil
}
