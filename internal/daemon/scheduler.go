package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler triggers periodic full rebuilds through gocron. A zero interval
// disables scheduling.
type Scheduler struct {
	scheduler gocron.Scheduler
	interval  time.Duration
}

// NewScheduler creates the scheduler; the job is registered on Start.
func NewScheduler(interval time.Duration, daemon *Daemon) (*Scheduler, error) {
	if interval <= 0 {
		return &Scheduler{}, nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { daemon.TriggerBuild("schedule") }),
		gocron.WithName("scheduled-rebuild"),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduled rebuild job: %w", err)
	}

	return &Scheduler{scheduler: s, interval: interval}, nil
}

// Start begins periodic scheduling (no-op when disabled).
func (s *Scheduler) Start() {
	if s.scheduler == nil {
		return
	}
	slog.Info("Starting rebuild scheduler", "interval", s.interval)
	s.scheduler.Start()
}

// Stop shuts the scheduler down.
func (s *Scheduler) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	slog.Info("Stopping rebuild scheduler")
	return s.scheduler.Shutdown()
}
