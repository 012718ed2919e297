package control

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sweeney/sous-vide/internal/status"
)

// refreshStatusLocked rebuilds the status snapshot from the current state and
// publishes it through the status file (and MQTT, when configured).
func (c *Controller) refreshStatusLocked(now time.Time) error {
	snap := c.snapshotLocked(now)
	if err := c.deps.Status.Write(snap); err != nil {
		return fmt.Errorf("%w: status: %w", ErrPersistence, err)
	}
	if c.deps.Notifier != nil {
		payload, err := snap.Marshal()
		if err == nil {
			err = c.deps.Notifier.PublishStatus(payload)
		}
		if err != nil {
			slog.Warn("publish status failed", "error", err)
		}
	}
	return nil
}

func (c *Controller) snapshotLocked(now time.Time) status.Snapshot {
	kp, ki, kd := c.deps.Algorithm.Gains()
	snap := status.Snapshot{
		PIDp:    status.Float(kp),
		PIDi:    status.Float(ki),
		PIDd:    status.Float(kd),
		Running: status.Bool(c.running),
	}
	if water, err := c.deps.Water.Read(); err == nil {
		snap.WaterDetected = status.Bool(water)
	} else {
		slog.Warn("water sensor read failed", "error", err)
	}
	if c.setpoint != nil {
		snap.Setpoint = status.Float(*c.setpoint)
	}
	if c.haveTemp {
		snap.Temperature = status.Float(c.currentTemp)
	}
	if d, ok := c.timeAtSetpointLocked(now); ok {
		snap.TimeAtSetpoint = status.Float(math.Round(d.Seconds()))
	}
	return snap
}

// timeAtSetpointLocked tracks how long the temperature has continuously been
// within SetpointBand of the setpoint while running.
func (c *Controller) timeAtSetpointLocked(now time.Time) (time.Duration, bool) {
	if !c.running || c.setpoint == nil || !c.haveTemp ||
		math.Abs(c.currentTemp-*c.setpoint) > c.cfg.SetpointBand {
		c.atSetpointSince = time.Time{}
		return 0, false
	}
	if c.atSetpointSince.IsZero() {
		c.atSetpointSince = now
	}
	return now.Sub(c.atSetpointSince), true
}
