package control

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sweeney/sous-vide/internal/logic"
)

// Start begins control. It needs a setpoint and water; without water the
// status is refreshed and ErrNoWater is returned with control left stopped.
// Starting while already running is a no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Metrics.IncCommand("start")
	return c.startLocked(c.deps.Now())
}

// Stop turns the heater and pump off and ends control. It is safe to call
// when already stopped.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Metrics.IncCommand("stop")
	return c.stopLocked(c.deps.Now())
}

func (c *Controller) startLocked(now time.Time) error {
	if c.setpoint == nil {
		return ErrNoSetpoint
	}
	if !c.waterLocked() {
		slog.Warn("refusing to start without water")
		if err := c.refreshStatusLocked(now); err != nil {
			slog.Warn("status refresh failed", "error", err)
		}
		return ErrNoWater
	}

	if !c.running {
		if err := c.setPumpLocked(true); err != nil {
			return err
		}
		c.running = true
		c.window = logic.NewWindow(now, c.cfg.WindowSize)
		c.atSetpointSince = time.Time{}
		c.deps.Metrics.SetRunning(true)
		slog.Info("control started", "setpoint", *c.setpoint)
		c.publishLocked(now, logic.EventStart, "")
	}
	if c.tuning {
		// Keep control running once the session ends.
		c.startedDuringTune = true
	}
	return c.refreshStatusLocked(now)
}

func (c *Controller) stopLocked(now time.Time) error {
	wasRunning := c.running
	c.running = false
	c.deps.Metrics.SetRunning(false)
	if _, err := c.setHeaterLocked(now, false, true); err != nil {
		return err
	}
	if err := c.setPumpLocked(false); err != nil {
		return err
	}
	c.atSetpointSince = time.Time{}
	if wasRunning {
		slog.Info("control stopped")
		c.publishLocked(now, logic.EventStop, "")
	}
	return c.refreshStatusLocked(now)
}

// removeCommand consumes a command flag. The file was just seen, so a
// failure here is reported rather than treated as a race.
func removeCommand(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("consume command %s: %w", path, err)
	}
	return nil
}
