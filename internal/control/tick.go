package control

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/sous-vide/internal/logic"
)

// Tick runs one control cycle. It is the timer callback body and may also be
// called directly. In order:
//
//  1. nothing happens before Init has completed;
//  2. command files are synced when the check interval has elapsed (or a
//     watcher nudged);
//  3. nothing more happens unless control is running;
//  4. without water the heater and pump are stopped and control halts;
//  5. the heater follows the sliding window;
//  6. a window about to expire is replaced by a new one whose on time comes
//     from the algorithm.
//
// A command sync error does not prevent the heater from being driven; it is
// returned together with any control error.
func (c *Controller) Tick() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil
	}
	now := c.deps.Now()

	var errs []error
	nudged := c.deps.Nudger != nil && c.deps.Nudger.Take()
	if nudged || logic.Due(now, c.lastCommandCheck, c.cfg.CommandCheckInterval) {
		if err := c.commandSyncLocked(now); err != nil {
			errs = append(errs, err)
		}
	}

	if !c.running {
		return errors.Join(errs...)
	}

	if !c.waterLocked() {
		slog.Error("no water detected, stopping")
		if err := c.haltLocked(now); err != nil {
			errs = append(errs, err)
		}
		c.publishLocked(now, logic.EventDry, "water sensor dry")
		if err := c.refreshStatusLocked(now); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	if _, err := c.setHeaterLocked(now, c.window.HeaterOn(now), false); err != nil {
		errs = append(errs, err)
	}

	if c.window.Expiring(now, c.cfg.AlarmInterval) {
		if err := c.rollWindowLocked(now); err != nil {
			errs = append(errs, err)
		}
		// The new window starts now, including the empty one run after a
		// failed read. A fault has already halted control and forced the
		// heater off.
		if c.running {
			if _, err := c.setHeaterLocked(now, c.window.HeaterOn(now), false); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// rollWindowLocked starts a new window at now and derives its on time.
func (c *Controller) rollWindowLocked(now time.Time) error {
	temp, err := c.readTemperatureLocked()
	if err := c.refreshStatusLocked(now); err != nil {
		slog.Warn("status refresh failed", "error", err)
	}
	if err != nil {
		// No trustworthy input: run an empty window rather than reuse the
		// previous output.
		_ = c.window.Roll(now, 0)
		c.trackOutputLocked()
		return err
	}

	out := c.deps.Algorithm.Compute(temp)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return c.faultLocked(now, fmt.Errorf("%w: output %v", ErrOutputExceedsWindow, out))
	}
	onTime := logic.OnTimeFromOutput(out)
	if err := c.window.Roll(now, onTime); err != nil {
		return c.faultLocked(now, fmt.Errorf("%w: output %.1fms: %w", ErrOutputExceedsWindow, out, err))
	}

	manual := c.deps.Algorithm.Manual()
	terms := c.deps.Algorithm.Terms()
	if manual {
		slog.Info("window", "mode", "manual", "on_time", onTime)
	} else {
		slog.Info("window",
			"setpoint", floatAttr(c.setpoint),
			"temp", temp,
			"error", terms.Error,
			"on_time", onTime,
			"p", terms.P,
			"i", terms.I,
			"d", terms.D)
		c.deps.Metrics.SetPIDTerms(terms.P, terms.I, terms.D)
	}
	if c.datalog != nil {
		if err := c.datalog.Record(now, manual, c.setpoint, temp, onTime, terms); err != nil {
			slog.Warn("datalog write failed", "error", err)
		}
	}
	c.deps.Metrics.IncWindow(manual)
	c.deps.Metrics.SetOnTime(onTime)
	c.trackOutputLocked()
	c.publishLocked(now, logic.EventWindow, "")
	return nil
}

// faultLocked halts control on an inconsistent algorithm output.
func (c *Controller) faultLocked(now time.Time, cause error) error {
	slog.Error("halting control", "error", cause)
	if err := c.haltLocked(now); err != nil {
		cause = errors.Join(cause, err)
	}
	c.publishLocked(now, logic.EventFault, cause.Error())
	if err := c.refreshStatusLocked(now); err != nil {
		slog.Warn("status refresh failed", "error", err)
	}
	return cause
}

// readTemperatureLocked refreshes currentTemp from the temperature file if it
// changed since the last read.
func (c *Controller) readTemperatureLocked() (float64, error) {
	readAt, data, err := c.deps.Store.ReadIfNewer(c.cfg.TemperatureFile, c.lastTempReadAt)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTemperatureSource, err)
	}
	if data == nil {
		if !c.haveTemp {
			return 0, fmt.Errorf("%w: %s has no reading yet", ErrTemperatureSource, c.cfg.TemperatureFile)
		}
		return c.currentTemp, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s: %q", ErrMalformedTemperature, c.cfg.TemperatureFile, data)
	}
	c.lastTempReadAt = readAt
	c.currentTemp = v
	c.haveTemp = true
	c.deps.Metrics.SetTemperature(v)
	return v, nil
}
