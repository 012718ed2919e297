package control

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/sous-vide/internal/filestore"
	"github.com/sweeney/sous-vide/internal/logic"
)

// SetSetpoint validates v, persists it to the setpoint file and only then
// applies it. On a persistence failure the previous setpoint stays in effect.
func (c *Controller) SetSetpoint(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setSetpointLocked(c.deps.Now(), v)
}

// SetSetpointString parses s as a decimal and applies it like SetSetpoint.
func (c *Controller) SetSetpointString(s string) error {
	v, err := parseSetpoint(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSetpoint, s)
	}
	return c.SetSetpoint(v)
}

// Setpoint returns the current target, or nil when none has been set.
func (c *Controller) Setpoint() *float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setpoint == nil {
		return nil
	}
	v := *c.setpoint
	return &v
}

func (c *Controller) setSetpointLocked(now time.Time, v float64) error {
	if !ValidSetpoint(v) {
		return fmt.Errorf("%w: %v", ErrInvalidSetpoint, v)
	}
	if c.setpoint != nil && *c.setpoint == v {
		return nil
	}

	data := []byte(strconv.FormatFloat(v, 'f', -1, 64) + "\n")
	if err := c.deps.Store.Write(c.cfg.SetpointFile, data, c.cfg.Owner); err != nil {
		return fmt.Errorf("%w: setpoint: %w", ErrPersistence, err)
	}
	// Our own write must not be read back as an external change.
	c.lastSetpointReadAt = now

	c.setpoint = &v
	c.deps.Algorithm.SetSetpoint(v)
	c.atSetpointSince = time.Time{}
	c.deps.Metrics.SetSetpoint(v)
	slog.Info("setpoint changed", "setpoint", v)
	c.publishLocked(now, logic.EventSetpoint, "")

	if err := c.refreshStatusLocked(now); err != nil {
		slog.Warn("status refresh failed", "error", err)
	}
	return nil
}

// syncSetpointLocked picks up a setpoint written to the setpoint file by
// another process. Missing or malformed content is only reported once a
// setpoint has been established; before that it is a normal startup state.
func (c *Controller) syncSetpointLocked(now time.Time) error {
	readAt, data, err := c.deps.Store.ReadIfNewer(c.cfg.SetpointFile, c.lastSetpointReadAt)
	if err != nil {
		if c.setpoint == nil {
			slog.Debug("no setpoint yet", "path", c.cfg.SetpointFile, "error", err)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrSetpointSource, err)
	}
	if data == nil {
		return nil
	}
	c.lastSetpointReadAt = readAt

	v, err := parseSetpoint(string(data))
	if err != nil || !ValidSetpoint(v) {
		if c.setpoint == nil {
			slog.Debug("ignoring malformed setpoint file", "path", c.cfg.SetpointFile, "content", string(data))
			return nil
		}
		return fmt.Errorf("%w: %s: %q", ErrMalformedSetpoint, c.cfg.SetpointFile, data)
	}
	return c.setSetpointLocked(now, v)
}

// commandSyncLocked applies setpoint and start/stop command files. Each part
// runs even if an earlier one failed.
func (c *Controller) commandSyncLocked(now time.Time) error {
	c.lastCommandCheck = now

	var errs []error
	if err := c.syncSetpointLocked(now); err != nil {
		errs = append(errs, err)
	}

	if filestore.Exists(c.cfg.StartFile) {
		slog.Info("start command received", "path", c.cfg.StartFile)
		c.deps.Metrics.IncCommand("start")
		if err := c.startLocked(now); err != nil {
			errs = append(errs, err)
		}
		if err := removeCommand(c.cfg.StartFile); err != nil {
			errs = append(errs, err)
		}
	}
	if filestore.Exists(c.cfg.StopFile) {
		slog.Info("stop command received", "path", c.cfg.StopFile)
		c.deps.Metrics.IncCommand("stop")
		if err := c.stopLocked(now); err != nil {
			errs = append(errs, err)
		}
		if err := removeCommand(c.cfg.StopFile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseSetpoint(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ValidSetpoint reports whether v is a usable target: positive and finite.
func ValidSetpoint(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
