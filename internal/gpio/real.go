//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "sous-vide"

// RealBoard owns the GPIO chip and the three lines the controller uses.
type RealBoard struct {
	chip   *gpiocdev.Chip
	heater *RealOutput
	pump   *RealOutput
	water  *RealInput
}

// NewRealBoard opens chipName and requests the heater, pump and water lines.
// Both outputs are requested in their logical OFF state, so the pump relay
// (active low) is driven high immediately.
func NewRealBoard(chipName string, pins Pins) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	heaterLine, err := chip.RequestLine(pins.Heater, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request heater pin %d: %w", pins.Heater, err)
	}

	pumpLine, err := chip.RequestLine(pins.Pump, gpiocdev.AsActiveLow, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		heaterLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request pump pin %d: %w", pins.Pump, err)
	}

	// Pull-down matches Pi boot defaults; a dry sensor floats low.
	waterLine, err := chip.RequestLine(pins.Water, gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.WithConsumer(consumer))
	if err != nil {
		pumpLine.Close()
		heaterLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request water pin %d: %w", pins.Water, err)
	}

	return &RealBoard{
		chip:   chip,
		heater: &RealOutput{name: "heater", line: heaterLine},
		pump:   &RealOutput{name: "pump", line: pumpLine, activeLow: true},
		water:  &RealInput{name: "water", line: waterLine},
	}, nil
}

// Heater returns the heating element output.
func (b *RealBoard) Heater() Output { return b.heater }

// Pump returns the circulation pump output.
func (b *RealBoard) Pump() Output { return b.pump }

// Water returns the water level sensor input.
func (b *RealBoard) Water() Input { return b.water }

// Close turns both outputs off and releases every line and the chip.
// Released outputs are pulled towards their inactive level so neither relay
// is energised across a restart.
func (b *RealBoard) Close() error {
	var errs []error
	for _, c := range []interface{ Close() error }{b.heater, b.pump, b.water} {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RealOutput is a requested output line.
type RealOutput struct {
	name      string
	line      *gpiocdev.Line
	activeLow bool
}

// Set writes the logical value. Active-low lines are inverted by the kernel.
func (o *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set %s pin: %w", o.name, err)
	}
	return nil
}

// Close drives the output off, reconfigures it as an input biased to the
// relay's inactive level and releases the line.
func (o *RealOutput) Close() error {
	if o == nil || o.line == nil {
		return nil
	}
	var errs []error
	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("turn off %s pin: %w", o.name, err))
	}
	var err error
	if idleLevel(o.activeLow) == 1 {
		err = o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp)
	} else {
		err = o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", o.name, err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s pin: %w", o.name, err))
	}
	return errors.Join(errs...)
}

// RealInput is a requested input line.
type RealInput struct {
	name string
	line *gpiocdev.Line
}

// Read returns true when the line is high.
func (i *RealInput) Read() (bool, error) {
	v, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s pin: %w", i.name, err)
	}
	return v == 1, nil
}

// Close releases the line.
func (i *RealInput) Close() error {
	if i == nil || i.line == nil {
		return nil
	}
	if err := i.line.Close(); err != nil {
		return fmt.Errorf("close %s pin: %w", i.name, err)
	}
	return nil
}
