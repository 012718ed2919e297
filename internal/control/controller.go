// Package control is the composition root of the heater controller. It owns
// the controller state and runs the duty-cycle tick, command file sync, the
// setpoint protocol and autotune sessions.
//
// All state mutation happens with the controller mutex held, so a tick and
// an explicit API call never interleave. The periodic timer is injected and
// only started by StartTicking.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sweeney/sous-vide/internal/filestore"
	"github.com/sweeney/sous-vide/internal/gpio"
	"github.com/sweeney/sous-vide/internal/logic"
	"github.com/sweeney/sous-vide/internal/metrics"
	"github.com/sweeney/sous-vide/internal/pid"
	"github.com/sweeney/sous-vide/internal/schedule"
	"github.com/sweeney/sous-vide/internal/status"
)

// Algorithm is the control algorithm contract. *pid.Controller satisfies it.
type Algorithm interface {
	Compute(input float64) float64
	ManualOverride(output float64)
	Automatic()
	Manual() bool
	SetSetpoint(sp float64)
	Gains() (kp, ki, kd float64)
	Terms() pid.Terms
}

// Notifier receives controller events and status snapshots. Failures are
// logged and never affect control.
type Notifier interface {
	Publish(event logic.Event) error
	PublishStatus(payload []byte) error
}

// Nudger reports out-of-band hints that the command files changed.
type Nudger interface {
	Take() bool
}

// Config holds the controller settings.
type Config struct {
	TemperatureFile string
	SetpointFile    string
	StartFile       string
	StopFile        string
	Owner           *filestore.Owner

	WindowSize           time.Duration
	AlarmInterval        time.Duration // 0 disables ticking
	CommandCheckInterval time.Duration
	SetpointBand         float64 // |temp-setpoint| counted as "at setpoint"

	Autotune AutotuneConfig

	// DatalogDir, if set, receives one CSV row per window.
	DatalogDir string
}

// Deps are the collaborators injected into the controller. Optional ones
// may be left nil.
type Deps struct {
	Algorithm Algorithm
	Heater    gpio.Output
	Pump      gpio.Output
	Water     gpio.Input
	Store     *filestore.Store
	Status    *status.Writer
	Ticker    schedule.Ticker

	Tracker  *status.Tracker  // optional
	Notifier Notifier         // optional
	Metrics  metrics.Recorder // optional, defaults to NoopRecorder
	Nudger   Nudger           // optional

	// Now and Sleep default to the real clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	// NewTuner defaults to the relay tuner in package pid.
	NewTuner TunerFactory
}

// State is a copy of the controller state for inspection.
type State struct {
	Setpoint    *float64
	Running     bool
	HeaterOn    bool
	PumpOn      bool
	Temperature float64
	HasTemp     bool
	Window      logic.Window
	Manual      bool
}

// Controller drives the heater. Create it with New and call Init before
// StartTicking.
type Controller struct {
	cfg  Config
	deps Deps

	mu          sync.Mutex
	initialized bool
	setpoint    *float64
	running     bool
	heaterOn    bool
	pumpOn      bool
	window      logic.Window
	currentTemp float64
	haveTemp    bool

	lastTempReadAt     time.Time
	lastSetpointReadAt time.Time
	lastCommandCheck   time.Time
	atSetpointSince    time.Time

	datalog *dataLog
	ticking bool
	tuning  bool

	// startedDuringTune records an explicit start while an autotune
	// session is running.
	startedDuringTune bool
}

// New validates the configuration and wires the collaborators. No file or
// GPIO is touched until Init.
func New(cfg Config, deps Deps) (*Controller, error) {
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %v", cfg.WindowSize)
	}
	if cfg.AlarmInterval < 0 {
		return nil, fmt.Errorf("alarm interval must not be negative, got %v", cfg.AlarmInterval)
	}
	if cfg.TemperatureFile == "" || cfg.SetpointFile == "" || cfg.StartFile == "" || cfg.StopFile == "" {
		return nil, errors.New("temperature, setpoint, start and stop files are required")
	}
	if deps.Algorithm == nil || deps.Heater == nil || deps.Pump == nil || deps.Water == nil {
		return nil, errors.New("algorithm, heater, pump and water sensor are required")
	}
	if deps.Store == nil || deps.Status == nil {
		return nil, errors.New("file store and status writer are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	if deps.NewTuner == nil {
		deps.NewTuner = relayTuner
	}
	return &Controller{cfg: cfg, deps: deps}, nil
}

// Init brings the controller to a known state: stale command flags are
// removed, both outputs are driven off, the temperature is sampled, the
// setpoint is restored from its file and a first status is published.
// Ticks are ignored until Init succeeds.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.deps.Now()

	for _, p := range []string{c.cfg.StartFile, c.cfg.StopFile} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale command %s: %w", p, err)
		}
	}

	c.window = logic.NewWindow(now, c.cfg.WindowSize)
	if err := c.setPumpLocked(false); err != nil {
		return err
	}
	if _, err := c.setHeaterLocked(now, false, true); err != nil {
		return err
	}

	if _, err := c.readTemperatureLocked(); err != nil {
		return err
	}

	if err := c.syncSetpointLocked(now); err != nil {
		slog.Warn("ignoring stored setpoint", "path", c.cfg.SetpointFile, "error", err)
	}

	if c.cfg.DatalogDir != "" {
		dl, err := openDataLog(c.cfg.DatalogDir, now)
		if err != nil {
			return err
		}
		c.datalog = dl
	}

	c.lastCommandCheck = now

	if err := c.refreshStatusLocked(now); err != nil {
		return err
	}

	c.initialized = true
	slog.Info("controller initialized",
		"temp", c.currentTemp,
		"setpoint", floatAttr(c.setpoint),
		"window", c.cfg.WindowSize,
		"alarm_interval", c.cfg.AlarmInterval)
	return nil
}

// StartTicking schedules Tick every AlarmInterval. An interval of zero
// leaves the timer disabled.
func (c *Controller) StartTicking() error {
	if c.cfg.AlarmInterval == 0 {
		slog.Warn("alarm interval is zero, control tick disabled")
		return nil
	}
	if c.deps.Ticker == nil {
		return errors.New("no ticker configured")
	}
	if err := c.deps.Ticker.Start(c.cfg.AlarmInterval, c.onTick); err != nil {
		return fmt.Errorf("start ticking: %w", err)
	}
	c.mu.Lock()
	c.ticking = true
	c.mu.Unlock()
	return nil
}

// StopTicking cancels the periodic timer. A tick already executing runs to
// completion.
func (c *Controller) StopTicking() error {
	c.mu.Lock()
	wasTicking := c.ticking
	c.ticking = false
	c.mu.Unlock()
	if !wasTicking || c.deps.Ticker == nil {
		return nil
	}
	return c.deps.Ticker.Stop()
}

// onTick is the timer callback. Errors abort only the tick they happen in.
func (c *Controller) onTick() {
	start := time.Now()
	err := c.Tick()
	c.deps.Metrics.ObserveTickDuration(time.Since(start))
	if err != nil {
		c.deps.Metrics.IncTickError(errorKind(err))
		slog.Error("tick failed", "error", err)
	}
}

// Close stops ticking and leaves the hardware safe: heater and pump off,
// control stopped. GPIO lines themselves are owned by the caller.
func (c *Controller) Close() error {
	var errs []error
	if err := c.StopTicking(); err != nil {
		errs = append(errs, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.deps.Now()
	c.running = false
	if _, err := c.setHeaterLocked(now, false, true); err != nil {
		errs = append(errs, err)
	}
	if err := c.setPumpLocked(false); err != nil {
		errs = append(errs, err)
	}
	if c.initialized {
		if err := c.refreshStatusLocked(now); err != nil {
			errs = append(errs, err)
		}
	}
	if c.datalog != nil {
		if err := c.datalog.Close(); err != nil {
			errs = append(errs, err)
		}
		c.datalog = nil
	}
	c.initialized = false
	slog.Info("controller closed")
	return errors.Join(errs...)
}

// State returns a copy of the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Running:     c.running,
		HeaterOn:    c.heaterOn,
		PumpOn:      c.pumpOn,
		Temperature: c.currentTemp,
		HasTemp:     c.haveTemp,
		Window:      c.window,
		Manual:      c.deps.Algorithm.Manual(),
	}
	if c.setpoint != nil {
		v := *c.setpoint
		s.Setpoint = &v
	}
	return s
}

// RefreshStatus rebuilds the status snapshot and publishes it.
func (c *Controller) RefreshStatus() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshStatusLocked(c.deps.Now())
}

// setHeaterLocked commands the heater. Without force the hardware is only
// written when the logical value changes. It reports whether it flipped.
func (c *Controller) setHeaterLocked(now time.Time, on, force bool) (bool, error) {
	if !force && on == c.heaterOn {
		return false, nil
	}
	if err := c.deps.Heater.Set(on); err != nil {
		return false, fmt.Errorf("set heater: %w", err)
	}
	if on == c.heaterOn {
		return false, nil
	}
	c.heaterOn = on
	if on {
		slog.Debug("heater on", "window_start", c.window.Start, "on_time", c.window.OnTime)
		c.publishLocked(now, logic.EventHeaterOn, "")
	} else {
		slog.Debug("heater off", "window_start", c.window.Start, "on_time", c.window.OnTime)
		c.publishLocked(now, logic.EventHeaterOff, "")
	}
	c.deps.Metrics.SetHeater(on)
	c.trackOutputLocked()
	return true, nil
}

// setPumpLocked drives the circulation pump.
func (c *Controller) setPumpLocked(on bool) error {
	if err := c.deps.Pump.Set(on); err != nil {
		return fmt.Errorf("set pump: %w", err)
	}
	c.pumpOn = on
	return nil
}

// waterLocked reads the level sensor. A read failure counts as dry.
func (c *Controller) waterLocked() bool {
	ok, err := c.deps.Water.Read()
	if err != nil {
		slog.Warn("water sensor read failed", "error", err)
		return false
	}
	return ok
}

// haltLocked stops control after a fault or a dry reading.
func (c *Controller) haltLocked(now time.Time) error {
	c.running = false
	c.deps.Metrics.SetRunning(false)
	var errs []error
	if _, err := c.setHeaterLocked(now, false, true); err != nil {
		errs = append(errs, err)
	}
	if err := c.setPumpLocked(false); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Controller) publishLocked(now time.Time, typ logic.EventType, reason string) {
	if c.deps.Notifier == nil {
		return
	}
	ev := logic.Event{
		Timestamp:   now,
		Type:        typ,
		Heater:      logic.StateOf(c.heaterOn),
		Running:     c.running,
		Temperature: c.currentTemp,
		OnTime:      c.window.OnTime,
		Manual:      c.deps.Algorithm.Manual(),
		Reason:      reason,
	}
	if c.setpoint != nil {
		v := *c.setpoint
		ev.Setpoint = &v
	}
	if err := c.deps.Notifier.Publish(ev); err != nil {
		slog.Warn("publish event failed", "event", typ, "error", err)
	}
}

func (c *Controller) trackOutputLocked() {
	if c.deps.Tracker == nil {
		return
	}
	c.deps.Tracker.SetOutput(logic.StateOf(c.heaterOn), c.window.OnTime, c.deps.Algorithm.Manual())
}

func floatAttr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
