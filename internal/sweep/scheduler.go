// Package sweep runs the TTL sweep scheduler (spec §4.14): a periodic
// job that proactively purges expired pending-confirmation and
// short-term-context entries and resets the dev log's guardrail
// alert-rate window, on top of the lazy-read expiry those stores already
// perform on their own.
package sweep

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Sweepable is implemented by any TTL store that can drop its own
// expired entries on demand.
type Sweepable interface {
	Sweep(now time.Time) (removed int)
}

// AlertResetter is implemented by the dev log's alert evaluator.
type AlertResetter interface {
	Reset()
}

// Config configures a Scheduler.
type Config struct {
	// WorkerID identifies this scheduler instance in logs. Defaults to a
	// generated UUID.
	WorkerID string

	// Spec is the cron schedule for the sweep. Defaults to "@every 1m".
	Spec string

	Stores        []Sweepable
	AlertResetter AlertResetter
	Logger        *slog.Logger
}

// Scheduler runs the sweep job on a cron schedule.
type Scheduler struct {
	cfg    Config
	cron   *cron.Cron
	logger *slog.Logger
}

// New builds a Scheduler; call Start to begin running the sweep.
func New(cfg Config) *Scheduler {
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if cfg.Spec == "" {
		cfg.Spec = "@every 1m"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, cron: cron.New(), logger: cfg.Logger}
}

// Start registers the sweep job and starts the cron scheduler's own
// goroutine. It returns an error only if the cron spec fails to parse.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Spec, s.runSweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runSweep() {
	now := time.Now()
	total := 0
	for _, store := range s.cfg.Stores {
		total += store.Sweep(now)
	}
	if s.cfg.AlertResetter != nil {
		s.cfg.AlertResetter.Reset()
	}
	s.logger.Info("ttl sweep complete", "worker_id", s.cfg.WorkerID, "removed", total)
}
