package pid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/asecurityteam/rolling"
)

// ErrNotStable is returned while the process variable is still drifting, or
// when the relay oscillation fails to settle. It is an expected condition
// during autotuning and callers retry on it.
var ErrNotStable = errors.New("process not stable")

// TunerConfig holds the autotune parameters. They are fixed for the lifetime
// of a Tuner.
type TunerConfig struct {
	NoiseBand      float64       // temperature band treated as noise
	OutputStep     float64       // relay amplitude around the base output
	Lookback       time.Duration // stability lookback window
	SampleInterval time.Duration // time between temperature samples
	MaxDuration    time.Duration // give up on the relay test after this long
}

// Gains is an autotune result.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Tuner runs the relay (Astrom-Hagglund) test around a pinned base output and
// converts the resulting oscillation into Ziegler-Nichols PID gains.
type Tuner struct {
	cfg       TunerConfig
	read      func() (float64, error)
	setOutput func(float64)
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error

	samples  *rolling.PointPolicy
	buckets  int
	appended int
}

// NewTuner creates a tuner. read samples the process variable and setOutput
// pins the controller output (manual override).
func NewTuner(cfg TunerConfig, read func() (float64, error), setOutput func(float64)) *Tuner {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = time.Hour
	}
	t := &Tuner{
		cfg:       cfg,
		read:      read,
		setOutput: setOutput,
		now:       time.Now,
		sleep:     sleepCtx,
	}
	t.Reset()
	return t
}

// WithClock replaces the time source and sleep function. Used by tests and
// simulations to run the relay test in virtual time.
func (t *Tuner) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Tuner {
	t.now = now
	t.sleep = sleep
	return t
}

// Reset discards the stability lookback samples.
func (t *Tuner) Reset() {
	t.buckets = int(math.Ceil(t.cfg.Lookback.Seconds() / t.cfg.SampleInterval.Seconds()))
	if t.buckets < 2 {
		t.buckets = 2
	}
	t.samples = rolling.NewPointPolicy(rolling.NewWindow(t.buckets))
	t.appended = 0
}

// VerifyStability takes one sample and returns ErrNotStable unless the whole
// lookback window has been filled and stays within the noise band.
func (t *Tuner) VerifyStability() error {
	v, err := t.read()
	if err != nil {
		return fmt.Errorf("read temperature: %w", err)
	}
	t.samples.Append(v)
	t.appended++

	if t.appended < t.buckets {
		return fmt.Errorf("%w: collecting samples (%d/%d)", ErrNotStable, t.appended, t.buckets)
	}
	spread := t.samples.Reduce(rolling.Max) - t.samples.Reduce(rolling.Min)
	if spread > t.cfg.NoiseBand {
		return fmt.Errorf("%w: spread %.3f exceeds noise band %.3f", ErrNotStable, spread, t.cfg.NoiseBand)
	}
	return nil
}

type peak struct {
	value float64
	at    time.Time
}

// Tune runs the relay test around base. It returns ErrNotStable if the
// process runs away from its starting point or does not settle into a
// repeatable oscillation within MaxDuration.
func (t *Tuner) Tune(ctx context.Context, base float64) (Gains, error) {
	center, err := t.read()
	if err != nil {
		return Gains{}, fmt.Errorf("read temperature: %w", err)
	}

	step := t.cfg.OutputStep
	band := t.cfg.NoiseBand
	runaway := 10 * math.Max(band, 0.5)
	high, low := base+step, math.Max(base-step, 0)

	started := t.now()
	heating := true
	t.setOutput(high)

	absMax, absMin := center, center
	extreme := peak{value: center, at: started}
	var maxima []peak

	for {
		if err := t.sleep(ctx, t.cfg.SampleInterval); err != nil {
			return Gains{}, err
		}
		now := t.now()
		if now.Sub(started) > t.cfg.MaxDuration {
			return Gains{}, fmt.Errorf("%w: no repeatable oscillation after %v", ErrNotStable, t.cfg.MaxDuration)
		}

		in, err := t.read()
		if err != nil {
			return Gains{}, fmt.Errorf("read temperature: %w", err)
		}
		if math.Abs(in-center) > runaway {
			return Gains{}, fmt.Errorf("%w: temperature %.2f ran away from %.2f", ErrNotStable, in, center)
		}
		absMax = math.Max(absMax, in)
		absMin = math.Min(absMin, in)

		// While heating we track the trough, while cooling the crest. The
		// process lags the relay, so each extreme is only final at the next switch.
		if (heating && in < extreme.value) || (!heating && in > extreme.value) {
			extreme = peak{value: in, at: now}
		}

		switch {
		case heating && in > center+band:
			heating = false
			t.setOutput(low)
			extreme = peak{value: in, at: now}
			continue
		case !heating && in < center-band:
			heating = true
			t.setOutput(high)
			maxima = append(maxima, extreme)
			extreme = peak{value: in, at: now}
		default:
			continue
		}

		if len(maxima) < 3 {
			continue
		}

		n := len(maxima)
		sep := (math.Abs(maxima[n-1].value-maxima[n-2].value) + math.Abs(maxima[n-2].value-maxima[n-3].value)) / 2
		amplitude := absMax - absMin
		if amplitude <= 0 || sep >= 0.05*amplitude {
			continue
		}

		ku := 4 * (2 * step) / (amplitude * math.Pi)
		pu := maxima[n-1].at.Sub(maxima[n-2].at).Seconds()
		if pu <= 0 {
			continue
		}
		return Gains{
			Kp: 0.6 * ku,
			Ki: 1.2 * ku / pu,
			Kd: 0.075 * ku * pu,
		}, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
