package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/sous-vide/internal/logic"
	"github.com/sweeney/sous-vide/internal/pid"
)

// AutotuneConfig holds the autotune session parameters.
type AutotuneConfig struct {
	NoiseBand           float64
	OutputStep          float64
	Lookback            time.Duration
	StableTimeGoal      time.Duration
	StabilizationOutput float64 // pinned output in ms per window
	CheckInterval       time.Duration
	MaxAttempts         int // 0 retries forever
	MaxDuration         time.Duration
}

// Tuner is the stability test and gain derivation used by DoAutoTune.
// *pid.Tuner satisfies it.
type Tuner interface {
	Reset()
	VerifyStability() error
	Tune(ctx context.Context, base float64) (pid.Gains, error)
}

// TunerFactory builds a Tuner reading the process variable through read and
// pinning the output through set.
type TunerFactory func(cfg pid.TunerConfig, read func() (float64, error), set func(float64),
	now func() time.Time, sleep func(context.Context, time.Duration) error) Tuner

func relayTuner(cfg pid.TunerConfig, read func() (float64, error), set func(float64),
	now func() time.Time, sleep func(context.Context, time.Duration) error) Tuner {
	return pid.NewTuner(cfg, read, set).WithClock(now, sleep)
}

// DoAutoTune pins the output at StabilizationOutput, waits until the
// temperature has been stable for StableTimeGoal and then runs the relay
// test. A late instability reported by the test restarts the stability
// detection, at most MaxAttempts times when that is non-zero.
//
// Control runs in manual mode for the whole session; the regular tick keeps
// driving the heater from the pinned output. Afterwards automatic mode is
// restored, and control is stopped again if it was not running before and
// nobody started it during the session. The gains are returned, not applied.
func (c *Controller) DoAutoTune(ctx context.Context) (pid.Gains, error) {
	session := uuid.NewString()
	log := slog.With("session", session)

	wasRunning, err := c.beginAutotune()
	if err != nil {
		return pid.Gains{}, err
	}
	defer c.endAutotune(wasRunning)

	cfg := c.cfg.Autotune
	tuner := c.deps.NewTuner(pid.TunerConfig{
		NoiseBand:      cfg.NoiseBand,
		OutputStep:     cfg.OutputStep,
		Lookback:       cfg.Lookback,
		SampleInterval: cfg.CheckInterval,
		MaxDuration:    cfg.MaxDuration,
	}, c.autotuneRead, c.autotuneSet, c.deps.Now, c.deps.Sleep)

	log.Info("autotune started", "output", cfg.StabilizationOutput, "stable_time_goal", cfg.StableTimeGoal)

	for attempt := 1; ; attempt++ {
		c.autotuneSet(cfg.StabilizationOutput)
		if err := c.awaitStability(ctx, log, tuner); err != nil {
			c.deps.Metrics.IncAutotuneAttempt("error")
			c.publishAutotune("failed: " + err.Error())
			return pid.Gains{}, err
		}

		log.Info("stability confirmed, running relay test", "attempt", attempt)
		gains, err := tuner.Tune(ctx, cfg.StabilizationOutput)
		if errors.Is(err, pid.ErrNotStable) {
			c.deps.Metrics.IncAutotuneAttempt("unstable")
			log.Warn("relay test unstable, restarting detection", "attempt", attempt, "error", err)
			if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
				err = fmt.Errorf("autotune gave up after %d attempts: %w", attempt, err)
				c.publishAutotune("failed: " + err.Error())
				return pid.Gains{}, err
			}
			continue
		}
		if err != nil {
			c.deps.Metrics.IncAutotuneAttempt("error")
			c.publishAutotune("failed: " + err.Error())
			return pid.Gains{}, err
		}

		c.deps.Metrics.IncAutotuneAttempt("success")
		log.Info("autotune finished", "kp", gains.Kp, "ki", gains.Ki, "kd", gains.Kd, "attempts", attempt)
		c.publishAutotune(fmt.Sprintf("kp=%.4f ki=%.4f kd=%.4f", gains.Kp, gains.Ki, gains.Kd))
		return gains, nil
	}
}

// awaitStability checks the tuner until the detector confirms stability.
func (c *Controller) awaitStability(ctx context.Context, log *slog.Logger, tuner Tuner) error {
	det := logic.NewStabilityDetector(c.cfg.Autotune.StableTimeGoal)
	tuner.Reset()
	prev := det.State()
	for {
		err := tuner.VerifyStability()
		if err != nil && !errors.Is(err, pid.ErrNotStable) {
			return err
		}
		state := det.Observe(err == nil, c.deps.Now())
		if state != prev {
			log.Info("stability", "state", state.String())
			prev = state
		} else if err != nil {
			log.Debug("not stable yet", "reason", err)
		}
		if state == logic.StableConfirmed {
			return nil
		}
		if err := c.deps.Sleep(ctx, c.cfg.Autotune.CheckInterval); err != nil {
			return err
		}
	}
}

func (c *Controller) beginAutotune() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return false, errors.New("controller not initialized")
	}
	if c.tuning {
		return false, errors.New("autotune already in progress")
	}
	now := c.deps.Now()
	if !c.waterLocked() {
		return false, fmt.Errorf("autotune: %w", ErrNoWater)
	}

	wasRunning := c.running
	if !c.running {
		if err := c.setPumpLocked(true); err != nil {
			return false, err
		}
		c.running = true
		c.window = logic.NewWindow(now, c.cfg.WindowSize)
		c.deps.Metrics.SetRunning(true)
	}
	c.tuning = true
	c.startedDuringTune = false
	c.deps.Algorithm.ManualOverride(c.cfg.Autotune.StabilizationOutput)
	c.publishLocked(now, logic.EventAutotune, "started")
	if err := c.refreshStatusLocked(now); err != nil {
		slog.Warn("status refresh failed", "error", err)
	}
	return wasRunning, nil
}

func (c *Controller) endAutotune(wasRunning bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tuning = false
	c.deps.Algorithm.Automatic()
	now := c.deps.Now()
	if !wasRunning && c.running && !c.startedDuringTune {
		if err := c.stopLocked(now); err != nil {
			slog.Error("stop after autotune failed", "error", err)
		}
		return
	}
	c.trackOutputLocked()
	if err := c.refreshStatusLocked(now); err != nil {
		slog.Warn("status refresh failed", "error", err)
	}
}

// autotuneRead samples the temperature for the tuner. It fails once control
// has stopped, which ends the session.
func (c *Controller) autotuneRead() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0, ErrAutotuneAborted
	}
	return c.readTemperatureLocked()
}

func (c *Controller) autotuneSet(output float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Algorithm.ManualOverride(output)
}

func (c *Controller) publishAutotune(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(c.deps.Now(), logic.EventAutotune, reason)
}
