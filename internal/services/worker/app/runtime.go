package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	platformgrpc "github.com/louisbranch/vvebeheer/internal/platform/grpc"
	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	vveapp "github.com/louisbranch/vvebeheer/internal/services/vve/app"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
	workerdomain "github.com/louisbranch/vvebeheer/internal/services/worker/domain"
)

// Mail sender kinds.
const (
	SenderLog  = "log"
	SenderSMTP = "smtp"
)

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port          int
	DBPath        string
	Worker        string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	// DuesInterval and ReminderInterval space the association-wide jobs.
	DuesInterval     time.Duration
	ReminderInterval time.Duration
	// ImportDir enables the drop-folder import when set.
	ImportDir string
	GraceDays int
	Sender    string
	SMTP      mail.SMTPConfig
}

const (
	defaultWorkerPort       = 8089
	defaultWorkerDB         = "data/vvebeheer.db"
	defaultDuesInterval     = time.Hour
	defaultReminderInterval = 24 * time.Hour
	defaultLeaseTTL         = 2 * time.Minute
)

func (c RuntimeConfig) normalized() RuntimeConfig {
	if c.Port <= 0 {
		c.Port = defaultWorkerPort
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = defaultWorkerDB
	}
	if strings.TrimSpace(c.Worker) == "" {
		c.Worker = defaultLeaseOwner()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.DuesInterval <= 0 {
		c.DuesInterval = defaultDuesInterval
	}
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = defaultReminderInterval
	}
	c.Sender = strings.ToLower(strings.TrimSpace(c.Sender))
	if c.Sender == "" {
		c.Sender = SenderLog
	}
	return c
}

// defaultLeaseOwner keeps leases from different hosts apart.
func defaultLeaseOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return defaultWorker
	}
	return fmt.Sprintf("%s-%s-%d", defaultWorker, host, os.Getpid())
}

// Runtime is a composed worker ready to serve.
type Runtime struct {
	cfg    RuntimeConfig
	app    *vveapp.App
	loop   *Loop
	health *platformgrpc.HealthServer
	drop   *workerdomain.DropFolder
}

// NewRuntime opens the store, builds the jobs and binds the health port.
func NewRuntime(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	cfg = cfg.normalized()
	sender, err := newSender(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := vveapp.OpenStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	composed, err := vveapp.Compose(store, vveapp.Config{
		Mail: mail.Config{
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
		},
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	services := composed.Services
	log := logging.FromContext(ctx)
	schedules := []Schedule{
		{Job: workerdomain.NewMailDelivery(services.Outbox, sender, cfg.Worker, cfg.LeaseTTL, func(attempt mail.Attempt) {
			log.Info().
				Str("message_id", attempt.MessageID).
				Str("outcome", string(attempt.Outcome)).
				Int("attempts", attempt.Attempts).
				Str("error", attempt.Error).
				Msg("mail delivery attempt")
		})},
		{Job: workerdomain.NewProposalClosing(services.Associations, services.Voting)},
		{Job: workerdomain.NewDuesGeneration(services.Associations, services.Contributions), Every: cfg.DuesInterval},
		{Job: workerdomain.NewReminders(services.Associations, services.Contributions, composed.Dispatcher, cfg.GraceDays), Every: cfg.ReminderInterval},
	}
	var drop *workerdomain.DropFolder
	if dir := strings.TrimSpace(cfg.ImportDir); dir != "" {
		drop = workerdomain.NewDropFolder(dir, services.Associations, services.Banking)
		schedules = append(schedules, Schedule{Job: drop})
	}

	components := make([]string, 0, len(schedules))
	for _, schedule := range schedules {
		components = append(components, HealthComponent(schedule.Job.Name()))
	}
	health, err := platformgrpc.NewHealthServer(fmt.Sprintf(":%d", cfg.Port), components...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	loop := New(schedules, composed.Store, Config{Worker: cfg.Worker, PollInterval: cfg.PollInterval}, nil).WithHealth(health)
	return &Runtime{cfg: cfg, app: composed, loop: loop, health: health, drop: drop}, nil
}

// HealthAddr returns the bound health listener address.
func (r *Runtime) HealthAddr() string {
	return r.health.Addr().String()
}

// Loop exposes the job loop.
func (r *Runtime) Loop() *Loop {
	return r.loop
}

// Serve runs the health server, the loop and the drop-folder watcher until
// ctx is cancelled or one of them fails, then closes the store.
func (r *Runtime) Serve(ctx context.Context) error {
	defer func() {
		if err := r.app.Store.Close(); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Msg("close sqlite store")
		}
	}()
	logging.FromContext(ctx).Info().Str("addr", r.HealthAddr()).Msg("worker health server listening")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.health.Serve(groupCtx)
	})
	group.Go(func() error {
		return r.loop.Run(groupCtx)
	})
	if r.drop != nil {
		group.Go(func() error {
			return watchDropFolder(groupCtx, r.drop.Root(), defaultQuietPeriod, func() {
				r.loop.Trigger(workerdomain.JobImport)
			})
		})
	}
	return group.Wait()
}

// Run starts worker runtime dependencies and the background processing loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	runtime, err := NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	return runtime.Serve(ctx)
}

func newSender(ctx context.Context, cfg RuntimeConfig) (mail.Sender, error) {
	switch cfg.Sender {
	case SenderLog:
		return mail.NewLogSender(logging.FromContext(ctx).With().Str("component", "mail").Logger()), nil
	case SenderSMTP:
		sender, err := mail.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, fmt.Errorf("smtp sender: %w", err)
		}
		return sender, nil
	default:
		return nil, fmt.Errorf("unknown mail sender %q", cfg.Sender)
	}
}
