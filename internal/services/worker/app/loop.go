// Package app runs the background jobs on a poll loop behind a gRPC health
// server.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	workerdomain "github.com/louisbranch/vvebeheer/internal/services/worker/domain"
	workerstorage "github.com/louisbranch/vvebeheer/internal/services/worker/storage"
)

const (
	defaultWorker       = "worker"
	defaultPollInterval = 30 * time.Second
	triggerBuffer       = 8
)

// Config controls loop timing.
type Config struct {
	// Worker identifies this process in leases and run records.
	Worker       string
	PollInterval time.Duration
}

func (c Config) normalized() Config {
	c.Worker = strings.TrimSpace(c.Worker)
	if c.Worker == "" {
		c.Worker = defaultWorker
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// Schedule runs a job at most once per Every. Zero means every poll.
type Schedule struct {
	Job   workerdomain.Job
	Every time.Duration
}

// RunRecorder persists job runs.
type RunRecorder interface {
	RecordJobRun(ctx context.Context, run workerstorage.JobRun) error
}

// HealthReporter exposes per-job health.
type HealthReporter interface {
	SetServing(component string, serving bool)
}

// Loop schedules jobs on a single goroutine.
type Loop struct {
	schedules []Schedule
	recorder  RunRecorder
	health    HealthReporter
	cfg       Config
	clock     func() time.Time
	lastRun   map[string]time.Time
	disabled  map[string]bool
	trigger   chan string
}

// New builds a loop. recorder may be nil.
func New(schedules []Schedule, recorder RunRecorder, cfg Config, clock func() time.Time) *Loop {
	if clock == nil {
		clock = time.Now
	}
	return &Loop{
		schedules: schedules,
		recorder:  recorder,
		cfg:       cfg.normalized(),
		clock:     clock,
		lastRun:   make(map[string]time.Time),
		disabled:  make(map[string]bool),
		trigger:   make(chan string, triggerBuffer),
	}
}

// WithHealth reports job health to h.
func (l *Loop) WithHealth(h HealthReporter) *Loop {
	l.health = h
	return l
}

// HealthComponent names the health check of one job.
func HealthComponent(job string) string {
	return "worker." + job
}

// Trigger asks the loop to run job as soon as possible. It never blocks;
// a trigger arriving while the queue is full is dropped.
func (l *Loop) Trigger(job string) {
	select {
	case l.trigger <- job:
	default:
	}
}

// Run executes due jobs until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info().Str("worker", l.cfg.Worker).Dur("poll_interval", l.cfg.PollInterval).Int("jobs", len(l.schedules)).Msg("worker loop started")
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	l.runDue(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker loop stopped")
			return nil
		case <-ticker.C:
			l.runDue(ctx)
		case name := <-l.trigger:
			for _, schedule := range l.schedules {
				if schedule.Job.Name() == name {
					l.runJob(ctx, schedule.Job)
				}
			}
		}
	}
}

// RunOnce runs every enabled job immediately and returns the records.
func (l *Loop) RunOnce(ctx context.Context) []workerstorage.JobRun {
	runs := make([]workerstorage.JobRun, 0, len(l.schedules))
	for _, schedule := range l.schedules {
		if run, ok := l.runJob(ctx, schedule.Job); ok {
			runs = append(runs, run)
		}
	}
	return runs
}

func (l *Loop) runDue(ctx context.Context) {
	now := l.clock()
	for _, schedule := range l.schedules {
		if ctx.Err() != nil {
			return
		}
		every := schedule.Every
		if every <= 0 {
			every = l.cfg.PollInterval
		}
		last, ran := l.lastRun[schedule.Job.Name()]
		if ran && now.Sub(last) < every {
			continue
		}
		l.runJob(ctx, schedule.Job)
	}
}

func (l *Loop) runJob(ctx context.Context, job workerdomain.Job) (workerstorage.JobRun, bool) {
	name := job.Name()
	if l.disabled[name] || ctx.Err() != nil {
		return workerstorage.JobRun{}, false
	}
	started := l.clock()
	l.lastRun[name] = started
	result, err := job.Run(ctx, started)
	run := workerstorage.JobRun{
		Job:       name,
		Worker:    l.cfg.Worker,
		Outcome:   workerstorage.OutcomeSucceeded,
		Processed: result.Processed,
		Failed:    result.Failed,
		Detail:    result.Detail,
		StartedAt: started.UTC(),
		Duration:  l.clock().Sub(started),
	}

	log := logging.FromContext(ctx).With().Str("job", name).Logger()
	switch {
	case err == nil:
		log.Debug().Int("processed", result.Processed).Str("detail", result.Detail).Msg("job finished")
	case ctx.Err() != nil:
		// Shutdown interrupted the run; nothing to record.
		return workerstorage.JobRun{}, false
	case workerdomain.IsPermanent(err):
		run.Outcome = workerstorage.OutcomeDisabled
		run.LastError = err.Error()
		l.disabled[name] = true
		log.Error().Err(err).Msg("job disabled")
	default:
		run.Outcome = workerstorage.OutcomeFailed
		run.LastError = err.Error()
		log.Warn().Err(err).Int("processed", result.Processed).Int("failed", result.Failed).Msg("job failed")
	}
	if l.health != nil {
		l.health.SetServing(HealthComponent(name), !l.disabled[name])
	}
	if l.recorder != nil {
		// Record with a fresh context so a run finishing during shutdown is kept.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if recordErr := l.recorder.RecordJobRun(recordCtx, run); recordErr != nil {
			log.Warn().Err(recordErr).Msg("record job run")
		}
	}
	return run, true
}
