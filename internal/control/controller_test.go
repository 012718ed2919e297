package control

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/sous-vide/internal/filestore"
	"github.com/sweeney/sous-vide/internal/gpio"
	"github.com/sweeney/sous-vide/internal/logic"
	"github.com/sweeney/sous-vide/internal/mqtt"
	"github.com/sweeney/sous-vide/internal/pid"
	"github.com/sweeney/sous-vide/internal/schedule"
	"github.com/sweeney/sous-vide/internal/status"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

type fakeAlgo struct {
	output   float64
	inputs   []float64
	manual   bool
	override float64
	setpoint float64
	terms    pid.Terms
}

func (a *fakeAlgo) Compute(input float64) float64 {
	a.inputs = append(a.inputs, input)
	if a.manual {
		return a.override
	}
	a.terms = pid.Terms{P: a.output, Error: a.setpoint - input}
	return a.output
}

func (a *fakeAlgo) ManualOverride(output float64) {
	a.manual = true
	a.override = output
}

func (a *fakeAlgo) Automatic()                  { a.manual = false }
func (a *fakeAlgo) Manual() bool                { return a.manual }
func (a *fakeAlgo) SetSetpoint(sp float64)      { a.setpoint = sp }
func (a *fakeAlgo) Gains() (kp, ki, kd float64) { return 1, 2, 3 }
func (a *fakeAlgo) Terms() pid.Terms            { return a.terms }

type fakeNudger struct{ pending bool }

func (n *fakeNudger) Take() bool {
	p := n.pending
	n.pending = false
	return p
}

type harness struct {
	t       *testing.T
	dir     string
	cfg     Config
	clock   *fakeClock
	algo    *fakeAlgo
	heater  *gpio.FakeOutput
	pump    *gpio.FakeOutput
	water   *gpio.FakeInput
	pub     *mqtt.FakePublisher
	ticker  *schedule.Manual
	tracker *status.Tracker
	nudger  *fakeNudger
	ctrl    *Controller
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		t:      t,
		dir:    dir,
		clock:  &fakeClock{now: t0},
		algo:   &fakeAlgo{},
		heater: gpio.NewFakeOutput(),
		pump:   gpio.NewFakeOutput(),
		water:  gpio.NewFakeInput(true),
		pub:    mqtt.NewFakePublisher(),
		ticker: schedule.NewManual(),
		nudger: &fakeNudger{},
		cfg: Config{
			TemperatureFile:      filepath.Join(dir, "temptracker.dat"),
			SetpointFile:         filepath.Join(dir, "spsetpoint"),
			StartFile:            filepath.Join(dir, "start"),
			StopFile:             filepath.Join(dir, "stop"),
			WindowSize:           10 * time.Second,
			AlarmInterval:        time.Second,
			CommandCheckInterval: 2 * time.Second,
			SetpointBand:         0.5,
			Autotune: AutotuneConfig{
				NoiseBand:           1,
				OutputStep:          50,
				Lookback:            20 * time.Second,
				StableTimeGoal:      100 * time.Second,
				StabilizationOutput: 600,
				CheckInterval:       50 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(&h.cfg)
	}
	h.tracker = status.NewTracker(t0, status.Config{})
	store := filestore.New().WithClock(h.clock.Now)

	h.writeFile(h.cfg.TemperatureFile, "50.0\n")

	ctrl, err := New(h.cfg, Deps{
		Algorithm: h.algo,
		Heater:    h.heater,
		Pump:      h.pump,
		Water:     h.water,
		Store:     store,
		Status:    status.NewWriter(store, filepath.Join(dir, "status.json"), nil, h.tracker),
		Ticker:    h.ticker,
		Tracker:   h.tracker,
		Notifier:  h.pub,
		Nudger:    h.nudger,
		Now:       h.clock.Now,
		Sleep:     h.clock.Sleep,
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

// writeFile writes content with a modification time just after the virtual
// clock, so read-if-newer sees it as a fresh change.
func (h *harness) writeFile(path, content string) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
	mt := h.clock.Now().Add(time.Second)
	require.NoError(h.t, os.Chtimes(path, mt, mt))
}

func (h *harness) init() {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Init())
}

func (h *harness) startWithSetpoint(sp float64) {
	h.t.Helper()
	h.init()
	require.NoError(h.t, h.ctrl.SetSetpoint(sp))
	require.NoError(h.t, h.ctrl.Start())
}

func (h *harness) status() status.Snapshot {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.dir, "status.json"))
	require.NoError(h.t, err)
	snap, err := status.Parse(data)
	require.NoError(h.t, err)
	return snap
}

func countEvents(types []logic.EventType, typ logic.EventType) int {
	n := 0
	for _, t := range types {
		if t == typ {
			n++
		}
	}
	return n
}

func TestNewValidatesConfig(t *testing.T) {
	h := newHarness(t)
	deps := h.ctrl.deps

	cfg := h.cfg
	cfg.WindowSize = 0
	_, err := New(cfg, deps)
	assert.Error(t, err)

	cfg = h.cfg
	cfg.AlarmInterval = -time.Second
	_, err = New(cfg, deps)
	assert.Error(t, err)

	cfg = h.cfg
	cfg.StopFile = ""
	_, err = New(cfg, deps)
	assert.Error(t, err)

	noHeater := deps
	noHeater.Heater = nil
	_, err = New(h.cfg, noHeater)
	assert.Error(t, err)
}

func TestInitDrivesOutputsOffAndRemovesStaleCommands(t *testing.T) {
	h := newHarness(t)
	h.writeFile(h.cfg.StartFile, "")
	h.writeFile(h.cfg.StopFile, "")

	h.init()

	assert.Equal(t, []bool{false}, h.heater.Writes, "heater must be forced off once")
	assert.Equal(t, []bool{false}, h.pump.Writes)
	assert.NoFileExists(t, h.cfg.StartFile)
	assert.NoFileExists(t, h.cfg.StopFile)

	st := h.ctrl.State()
	assert.False(t, st.Running)
	assert.Nil(t, st.Setpoint)
	assert.True(t, st.HasTemp)
	assert.Equal(t, 50.0, st.Temperature)

	snap := h.status()
	assert.False(t, snap.Error)
	require.NotNil(t, snap.Temperature)
	assert.Equal(t, 50.0, *snap.Temperature)
	assert.Nil(t, snap.Setpoint)
	require.NotNil(t, snap.Running)
	assert.False(t, *snap.Running)
	require.NotNil(t, snap.WaterDetected)
	assert.True(t, *snap.WaterDetected)
	require.NotNil(t, snap.PIDp)
	assert.Equal(t, 1.0, *snap.PIDp)
	assert.Nil(t, snap.TimeAtSetpoint)
	assert.NotEmpty(t, h.pub.StatusPayloads)
}

func TestInitFailsWithoutTemperature(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(h.cfg.TemperatureFile))

	err := h.ctrl.Init()
	require.ErrorIs(t, err, ErrTemperatureSource)
	assert.ErrorIs(t, err, filestore.ErrStat)

	// Ticks stay inert until Init succeeds.
	require.NoError(t, h.ctrl.Tick())
}

func TestInitRejectsMalformedTemperature(t *testing.T) {
	h := newHarness(t)
	h.writeFile(h.cfg.TemperatureFile, "hot\n")
	assert.ErrorIs(t, h.ctrl.Init(), ErrMalformedTemperature)
}

func TestInitRestoresSetpoint(t *testing.T) {
	h := newHarness(t)
	h.writeFile(h.cfg.SetpointFile, "57.5\n")
	h.init()

	sp := h.ctrl.Setpoint()
	require.NotNil(t, sp)
	assert.Equal(t, 57.5, *sp)
	assert.Equal(t, 57.5, h.algo.setpoint)
	require.NotNil(t, h.status().Setpoint)
}

func TestInitIgnoresMalformedSetpoint(t *testing.T) {
	h := newHarness(t)
	h.writeFile(h.cfg.SetpointFile, "warm\n")
	h.init()
	assert.Nil(t, h.ctrl.Setpoint())
}

func TestTickBeforeInitIsNoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Tick())
	assert.Zero(t, h.heater.WriteCount())
	assert.Zero(t, h.pump.WriteCount())
	assert.Empty(t, h.pub.Events)
}

func TestSetpointRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.init()

	for _, v := range []float64{62.25, 0.1, 55, 99.999} {
		require.NoError(t, h.ctrl.SetSetpoint(v))

		data, err := os.ReadFile(h.cfg.SetpointFile)
		require.NoError(t, err)
		got, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, v, h.algo.setpoint)

		snap := h.status()
		require.NotNil(t, snap.Setpoint)
		assert.Equal(t, v, *snap.Setpoint)
	}
	assert.Equal(t, 4, countEvents(h.pub.EventTypes(), logic.EventSetpoint))
}

func TestSetpointRejectsInvalidValues(t *testing.T) {
	h := newHarness(t)
	h.init()
	require.NoError(t, h.ctrl.SetSetpoint(50))
	before, err := os.ReadFile(h.cfg.SetpointFile)
	require.NoError(t, err)

	tests := []struct {
		name string
		set  func() error
	}{
		{"zero", func() error { return h.ctrl.SetSetpoint(0) }},
		{"negative", func() error { return h.ctrl.SetSetpoint(-4) }},
		{"nan", func() error { return h.ctrl.SetSetpoint(math.NaN()) }},
		{"inf", func() error { return h.ctrl.SetSetpoint(math.Inf(1)) }},
		{"text", func() error { return h.ctrl.SetSetpointString("hot") }},
		{"empty", func() error { return h.ctrl.SetSetpointString("") }},
		{"negative text", func() error { return h.ctrl.SetSetpointString("-1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.set(), ErrInvalidSetpoint)

			sp := h.ctrl.Setpoint()
			require.NotNil(t, sp)
			assert.Equal(t, 50.0, *sp)
			assert.Equal(t, 50.0, h.algo.setpoint)
			after, err := os.ReadFile(h.cfg.SetpointFile)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	require.NoError(t, h.ctrl.SetSetpointString(" 60.5\n"))
	assert.Equal(t, 60.5, *h.ctrl.Setpoint())
}

func TestSetpointPersistenceFailureKeepsState(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.SetpointFile = filepath.Join(c.StartFile+".d", "missing", "spsetpoint")
	})
	h.init()

	err := h.ctrl.SetSetpoint(57)
	require.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, filestore.ErrWrite)
	assert.Nil(t, h.ctrl.Setpoint())
	assert.Zero(t, h.algo.setpoint)
	assert.Zero(t, countEvents(h.pub.EventTypes(), logic.EventSetpoint))
}

func TestStartRequiresSetpoint(t *testing.T) {
	h := newHarness(t)
	h.init()

	require.ErrorIs(t, h.ctrl.Start(), ErrNoSetpoint)
	assert.False(t, h.ctrl.State().Running)
	assert.False(t, h.pump.IsOn())
}

func TestStartWithoutWaterNeverRuns(t *testing.T) {
	h := newHarness(t)
	h.water.Set(false)
	h.init()
	require.NoError(t, h.ctrl.SetSetpoint(56))

	require.ErrorIs(t, h.ctrl.Start(), ErrNoWater)
	assert.False(t, h.ctrl.State().Running)
	assert.False(t, h.pump.IsOn())
	assert.Zero(t, countEvents(h.pub.EventTypes(), logic.EventStart))

	snap := h.status()
	require.NotNil(t, snap.WaterDetected)
	assert.False(t, *snap.WaterDetected)
	require.NotNil(t, snap.Running)
	assert.False(t, *snap.Running)

	for i := 0; i < 20; i++ {
		h.clock.Advance(time.Second)
		require.NoError(t, h.ctrl.Tick())
	}
	assert.False(t, h.ctrl.State().Running)
	assert.False(t, h.heater.IsOn())
}

func TestStartAndStop(t *testing.T) {
	h := newHarness(t)
	h.startWithSetpoint(56)

	st := h.ctrl.State()
	assert.True(t, st.Running)
	assert.True(t, st.PumpOn)
	assert.True(t, h.pump.IsOn())
	assert.Equal(t, t0, st.Window.Start)
	assert.Equal(t, 1, countEvents(h.pub.EventTypes(), logic.EventStart))

	// Starting again does not restart the window.
	h.clock.Advance(3 * time.Second)
	require.NoError(t, h.ctrl.Start())
	assert.Equal(t, t0, h.ctrl.State().Window.Start)
	assert.Equal(t, 1, countEvents(h.pub.EventTypes(), logic.EventStart))

	require.NoError(t, h.ctrl.Stop())
	st = h.ctrl.State()
	assert.False(t, st.Running)
	assert.False(t, st.HeaterOn)
	assert.False(t, h.pump.IsOn())
	assert.Equal(t, 1, countEvents(h.pub.EventTypes(), logic.EventStop))
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.init()
	require.NoError(t, h.ctrl.SetSetpoint(56))

	require.NoError(t, h.ctrl.Stop())
	first := h.ctrl.State()
	heaterWrites := h.heater.WriteCount()

	require.NoError(t, h.ctrl.Stop())
	second := h.ctrl.State()

	assert.Equal(t, first, second)
	assert.False(t, h.heater.IsOn())
	assert.Equal(t, heaterWrites+1, h.heater.WriteCount(), "heater is forced off on every stop")
	assert.Zero(t, countEvents(h.pub.EventTypes(), logic.EventStop), "nothing was running")
}

func TestHeaterFollowsWindow(t *testing.T) {
	h := newHarness(t)
	h.algo.output = 4000 // 4s of every 10s window
	h.startWithSetpoint(56)

	var got []bool
	for s := 0; s <= 25; s++ {
		require.NoError(t, h.ctrl.Tick())
		got = append(got, h.heater.IsOn())
		h.clock.Advance(time.Second)
	}

	// The first window is empty; each roll happens one alarm interval before
	// the window would end and the heater follows the new window immediately.
	want := []bool{
		false, false, false, false, false, false, false, false, false, false,
		true, true, true, true, false, false, false, false, false, false,
		true, true, true, true, false, false,
	}
	assert.Equal(t, want, got)
	assert.Len(t, h.algo.inputs, 2)
	assert.Equal(t, 2, countEvents(h.pub.EventTypes(), logic.EventWindow))
	assert.Equal(t, 2, countEvents(h.pub.EventTypes(), logic.EventHeaterOn))
	assert.Equal(t, 2, countEvents(h.pub.EventTypes(), logic.EventHeaterOff))
}

func TestHeaterWindowExhaustive(t *testing.T) {
	for _, onMs := range []float64{0, 1, 2500, 5000, 9999, 10000} {
		h := newHarness(t, func(c *Config) { c.AlarmInterval = 10 * time.Second })
		h.algo.output = onMs
		h.startWithSetpoint(56)

		// Force a roll, then sample the window that follows.
		h.clock.Advance(time.Second)
		require.NoError(t, h.ctrl.Tick())
		start := h.ctrl.State().Window.Start
		onTime := logic.OnTimeFromOutput(onMs)
		require.Equal(t, onTime, h.ctrl.State().Window.OnTime)

		for off := time.Duration(0); off < 10*time.Second; off += 250 * time.Millisecond {
			now := start.Add(off)
			w := h.ctrl.State().Window
			assert.Equal(t, off < onTime, w.HeaterOn(now), "on=%v at +%v", onTime, off)
		}
	}
}

func TestRolloverWhenAlarmEqualsWindow(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.AlarmInterval = 10 * time.Second })
	h.algo.output = 4000
	h.startWithSetpoint(56)

	h.clock.Advance(9 * time.Second)
	require.NoError(t, h.ctrl.Tick())

	st := h.ctrl.State()
	assert.Len(t, h.algo.inputs, 1, "exactly one evaluation for the new window")
	assert.Equal(t, t0.Add(9*time.Second), st.Window.Start)
	assert.Equal(t, 4*time.Second, st.Window.OnTime)
	assert.True(t, h.heater.IsOn(), "heater follows the new window in the same tick")

	require.NoError(t, h.ctrl.Tick())
	assert.Len(t, h.algo.inputs, 1)
}

func TestOutputExceedingWindowHalts(t *testing.T) {
	h := newHarness(t)
	h.algo.output = 10001
	h.startWithSetpoint(56)

	h.clock.Advance(10 * time.Second)
	err := h.ctrl.Tick()
	require.ErrorIs(t, err, ErrOutputExceedsWindow)
	assert.ErrorIs(t, err, logic.ErrOnTimeExceedsWindow)
	assert.Equal(t, "output", errorKind(err))

	st := h.ctrl.State()
	assert.False(t, st.Running)
	assert.False(t, h.heater.IsOn())
	assert.False(t, h.pump.IsOn())
	assert.Equal(t, 1, countEvents(h.pub.EventTypes(), logic.EventFault))
	require.NotNil(t, h.status().Running)
	assert.False(t, *h.status().Running)
}

func TestOutputNaNHalts(t *testing.T) {
	h := newHarness(t)
	h.algo.output = math.NaN()
	h.startWithSetpoint(56)

	h.clock.Advance(10 * time.Second)
	require.ErrorIs(t, h.ctrl.Tick(), ErrOutputExceedsWindow)
	assert.False(t, h.ctrl.State().Running)
}

func TestFullWindowOutputIsAccepted(t *testing.T) {
	h := newHarness(t)
	h.algo.output = 10000
	h.startWithSetpoint(56)

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	assert.True(t, h.ctrl.State().Running)
	assert.True(t, h.heater.IsOn())
}

func TestWaterInterlockHalts(t *testing.T) {
	h := newHarness(t)
	h.algo.output = 10000
	h.startWithSetpoint(56)
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	require.True(t, h.heater.IsOn())

	h.water.Set(false)
	h.clock.Advance(time.Second)
	require.NoError(t, h.ctrl.Tick())

	st := h.ctrl.State()
	assert.False(t, st.Running)
	assert.False(t, h.heater.IsOn())
	assert.False(t, h.pump.IsOn())
	assert.Equal(t, 1, countEvents(h.pub.EventTypes(), logic.EventDry))
}

func TestWaterReadErrorCountsAsDry(t *testing.T) {
	h := newHarness(t)
	h.startWithSetpoint(56)

	h.water.ReadError = errors.New("line busy")
	h.clock.Advance(time.Second)
	require.NoError(t, h.ctrl.Tick())
	assert.False(t, h.ctrl.State().Running)
	assert.Nil(t, h.status().WaterDetected)
}

func TestTemperatureFailureAtRolloverEmptiesWindow(t *testing.T) {
	h := newHarness(t)
	h.algo.output = 10000
	h.startWithSetpoint(56)
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	require.True(t, h.heater.IsOn())

	require.NoError(t, os.Remove(h.cfg.TemperatureFile))
	h.clock.Advance(10 * time.Second)
	err := h.ctrl.Tick()
	require.ErrorIs(t, err, ErrTemperatureSource)
	assert.Equal(t, "temperature", errorKind(err))

	st := h.ctrl.State()
	assert.True(t, st.Running, "a bad reading aborts only this window")
	assert.Zero(t, st.Window.OnTime)
	assert.False(t, h.heater.IsOn())

	h.writeFile(h.cfg.TemperatureFile, "n/a")
	h.clock.Advance(10 * time.Second)
	require.ErrorIs(t, h.ctrl.Tick(), ErrMalformedTemperature)

	h.writeFile(h.cfg.TemperatureFile, "55.5")
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	assert.Equal(t, 55.5, h.ctrl.State().Temperature)
	assert.True(t, h.heater.IsOn())
}

func TestTemperatureFailureMidWindowForcesHeaterOff(t *testing.T) {
	h := newHarness(t)
	h.algo.output = 10000
	h.startWithSetpoint(56)
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	require.True(t, h.heater.IsOn())
	start := h.ctrl.State().Window.Start

	// The full window is still ON here, but the roll falls due.
	require.NoError(t, os.Remove(h.cfg.TemperatureFile))
	h.clock.Advance(9500 * time.Millisecond)
	require.ErrorIs(t, h.ctrl.Tick(), ErrTemperatureSource)

	st := h.ctrl.State()
	assert.Equal(t, start.Add(9500*time.Millisecond), st.Window.Start)
	assert.Zero(t, st.Window.OnTime)
	assert.False(t, st.HeaterOn)
	assert.False(t, h.heater.IsOn(), "heater must follow the empty window")
	assert.Equal(t, logic.StateOff, h.tracker.View().Heater)
}

func TestCommandFilesAreConsumed(t *testing.T) {
	h := newHarness(t)
	h.init()
	require.NoError(t, h.ctrl.SetSetpoint(56))

	h.writeFile(h.cfg.StartFile, "")
	h.clock.Advance(time.Second)
	require.NoError(t, h.ctrl.Tick())
	assert.FileExists(t, h.cfg.StartFile, "command check interval has not elapsed")
	assert.False(t, h.ctrl.State().Running)

	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	assert.NoFileExists(t, h.cfg.StartFile)
	assert.True(t, h.ctrl.State().Running)

	h.writeFile(h.cfg.StopFile, "")
	h.clock.Advance(3 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	assert.NoFileExists(t, h.cfg.StopFile)
	assert.False(t, h.ctrl.State().Running)
	assert.False(t, h.pump.IsOn())
}

func TestStartCommandWithoutSetpointIsConsumed(t *testing.T) {
	h := newHarness(t)
	h.init()

	h.writeFile(h.cfg.StartFile, "")
	h.clock.Advance(3 * time.Second)
	require.ErrorIs(t, h.ctrl.Tick(), ErrNoSetpoint)
	assert.NoFileExists(t, h.cfg.StartFile)
	assert.False(t, h.ctrl.State().Running)
}

func TestNudgeRunsCommandSyncEarly(t *testing.T) {
	h := newHarness(t)
	h.init()
	require.NoError(t, h.ctrl.SetSetpoint(56))

	h.writeFile(h.cfg.StartFile, "")
	h.nudger.pending = true
	require.NoError(t, h.ctrl.Tick())
	assert.NoFileExists(t, h.cfg.StartFile)
	assert.True(t, h.ctrl.State().Running)
}

func TestCommandSyncReadsSetpointFile(t *testing.T) {
	h := newHarness(t)
	h.init()

	// Absent before the first setpoint is fine.
	h.clock.Advance(3 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	assert.Nil(t, h.ctrl.Setpoint())

	h.writeFile(h.cfg.SetpointFile, "61\n")
	h.clock.Advance(3 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	require.NotNil(t, h.ctrl.Setpoint())
	assert.Equal(t, 61.0, *h.ctrl.Setpoint())
	assert.Equal(t, 61.0, h.algo.setpoint)

	h.writeFile(h.cfg.SetpointFile, "bogus\n")
	h.clock.Advance(3 * time.Second)
	err := h.ctrl.Tick()
	require.ErrorIs(t, err, ErrMalformedSetpoint)
	assert.Equal(t, "setpoint", errorKind(err))
	assert.Equal(t, 61.0, *h.ctrl.Setpoint())

	require.NoError(t, os.Remove(h.cfg.SetpointFile))
	h.clock.Advance(3 * time.Second)
	require.ErrorIs(t, h.ctrl.Tick(), ErrSetpointSource)
	assert.Equal(t, 61.0, *h.ctrl.Setpoint())
}

func TestCommandSyncErrorStillDrivesHeater(t *testing.T) {
	h := newHarness(t)
	h.algo.output = 10000
	h.startWithSetpoint(56)
	h.writeFile(h.cfg.SetpointFile, "bogus")

	h.clock.Advance(10 * time.Second)
	err := h.ctrl.Tick()
	require.ErrorIs(t, err, ErrMalformedSetpoint)
	assert.True(t, h.heater.IsOn())
	assert.Len(t, h.algo.inputs, 1)
}

func TestTimeAtSetpoint(t *testing.T) {
	h := newHarness(t)
	h.startWithSetpoint(50.25)

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.ctrl.RefreshStatus())
	snap := h.status()
	require.NotNil(t, snap.TimeAtSetpoint)
	assert.Equal(t, 30.0, *snap.TimeAtSetpoint)

	h.writeFile(h.cfg.TemperatureFile, "45")
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	assert.Nil(t, h.status().TimeAtSetpoint)

	require.NoError(t, h.ctrl.Stop())
	assert.Nil(t, h.status().TimeAtSetpoint)
}

func TestTickingLifecycle(t *testing.T) {
	h := newHarness(t)
	h.startWithSetpoint(56)

	require.NoError(t, h.ctrl.StartTicking())
	assert.True(t, h.ticker.Running())
	assert.Equal(t, time.Second, h.ticker.Interval())

	h.algo.output = 10000
	h.clock.Advance(10 * time.Second)
	require.True(t, h.ticker.Fire())
	assert.True(t, h.heater.IsOn())

	require.NoError(t, h.ctrl.StopTicking())
	assert.False(t, h.ticker.Running())
	require.NoError(t, h.ctrl.StopTicking())
	assert.Equal(t, 1, h.ticker.Stops)
}

func TestZeroAlarmIntervalDisablesTicking(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.AlarmInterval = 0 })
	h.init()
	require.NoError(t, h.ctrl.StartTicking())
	assert.Zero(t, h.ticker.Starts)
}

func TestCloseLeavesOutputsOff(t *testing.T) {
	h := newHarness(t)
	h.algo.output = 10000
	h.startWithSetpoint(56)
	require.NoError(t, h.ctrl.StartTicking())
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	require.True(t, h.heater.IsOn())

	require.NoError(t, h.ctrl.Close())
	assert.False(t, h.heater.IsOn())
	assert.False(t, h.pump.IsOn())
	assert.False(t, h.ticker.Running())
	assert.False(t, *h.status().Running)

	require.NoError(t, h.ctrl.Tick())
	assert.False(t, h.heater.IsOn())
}

func TestTrackerFollowsOutput(t *testing.T) {
	h := newHarness(t)
	h.algo.output = 2500
	h.startWithSetpoint(56)
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())

	v := h.tracker.View()
	assert.Equal(t, logic.StateOn, v.Heater)
	assert.Equal(t, 2500*time.Millisecond, v.OnTime)
	require.NotNil(t, v.Status.Running)
	assert.True(t, *v.Status.Running)
}

func TestDatalogRecordsWindows(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "log")
	h := newHarness(t, func(c *Config) { c.DatalogDir = logDir })
	h.algo.output = 2500
	h.startWithSetpoint(56)

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	h.algo.ManualOverride(1000)
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctrl.Tick())
	require.NoError(t, h.ctrl.Close())

	data, err := os.ReadFile(filepath.Join(logDir, "datalog-2026-01-01_120000.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "time,setpoint,temp,error,on_time,p,i,d", lines[0])
	assert.Equal(t, "2026-01-01T12:00:10Z,56.000,50.000,6.000,2500,2500.000,0.000,0.000", lines[1])
	assert.Equal(t, "2026-01-01T12:00:20Z,-,-,-,1000,-,-,-", lines[2])
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrOutputExceedsWindow, "output"},
		{ErrMalformedTemperature, "temperature"},
		{ErrInvalidSetpoint, "setpoint"},
		{ErrPersistence, "persistence"},
		{ErrNoWater, "water"},
		{errors.Join(errors.New("x"), ErrTemperatureSource), "temperature"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorKind(tt.err), "%v", tt.err)
	}
}
