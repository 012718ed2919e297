// Package schedule provides the periodic timer that drives the control tick.
package schedule

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// Ticker invokes a function at a fixed interval until stopped.
type Ticker interface {
	// Start begins calling fn every interval. Calling Start again replaces
	// the previous schedule.
	Start(interval time.Duration, fn func()) error

	// Stop cancels the schedule. It is safe to call when not started.
	Stop() error
}

// Gocron is a Ticker backed by a gocron scheduler. The job runs in
// singleton mode: a tick that is still executing when the next one is due
// causes that next run to be skipped and rescheduled, so invocations never
// overlap.
type Gocron struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobID     uuid.UUID
	started   bool
}

// NewGocron creates a new scheduler instance.
func NewGocron(opts ...gocron.SchedulerOption) (*Gocron, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Gocron{scheduler: s}, nil
}

// Start schedules fn. The first run happens immediately.
func (g *Gocron) Start(interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", interval)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.jobID != uuid.Nil {
		if err := g.scheduler.RemoveJob(g.jobID); err != nil {
			return fmt.Errorf("failed to replace tick job: %w", err)
		}
		g.jobID = uuid.Nil
	}

	job, err := g.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName("control-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create tick job: %w", err)
	}
	g.jobID = job.ID()

	if !g.started {
		g.scheduler.Start()
		g.started = true
	}
	slog.Debug("tick scheduled", "interval", interval, "job", g.jobID)
	return nil
}

// Stop removes the tick job. The scheduler stays usable for a later Start.
func (g *Gocron) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.jobID == uuid.Nil {
		return nil
	}
	err := g.scheduler.RemoveJob(g.jobID)
	g.jobID = uuid.Nil
	if err != nil {
		return fmt.Errorf("failed to remove tick job: %w", err)
	}
	return nil
}

// Shutdown stops the scheduler and waits for a running tick to return.
func (g *Gocron) Shutdown() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.jobID = uuid.Nil
	return g.scheduler.Shutdown()
}
