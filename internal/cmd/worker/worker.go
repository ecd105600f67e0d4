// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/vvebeheer/internal/platform/cmd"
	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
	workerserver "github.com/louisbranch/vvebeheer/internal/services/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	Port             int           `env:"VVEBEHEER_WORKER_PORT" envDefault:"8089"`
	DBPath           string        `env:"VVEBEHEER_DB_PATH" envDefault:"data/vvebeheer.db"`
	Worker           string        `env:"VVEBEHEER_WORKER_NAME"`
	PollInterval     time.Duration `env:"VVEBEHEER_WORKER_POLL_INTERVAL" envDefault:"30s"`
	LeaseTTL         time.Duration `env:"VVEBEHEER_WORKER_LEASE_TTL" envDefault:"2m"`
	MaxAttempts      int           `env:"VVEBEHEER_MAIL_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff     time.Duration `env:"VVEBEHEER_MAIL_RETRY_BACKOFF" envDefault:"30s"`
	RetryMaxDelay    time.Duration `env:"VVEBEHEER_MAIL_RETRY_MAX_DELAY" envDefault:"1h"`
	DuesInterval     time.Duration `env:"VVEBEHEER_WORKER_DUES_INTERVAL" envDefault:"1h"`
	ReminderInterval time.Duration `env:"VVEBEHEER_WORKER_REMINDER_INTERVAL" envDefault:"24h"`
	ImportDir        string        `env:"VVEBEHEER_IMPORT_DIR"`
	GraceDays        int           `env:"VVEBEHEER_REMINDER_GRACE_DAYS" envDefault:"14"`
	Sender           string        `env:"VVEBEHEER_MAIL_SENDER" envDefault:"log"`
	SMTP             SMTPConfig
	Logging          logging.Config
}

// SMTPConfig holds outgoing mail server settings.
type SMTPConfig struct {
	Host     string `env:"VVEBEHEER_SMTP_HOST"`
	Port     int    `env:"VVEBEHEER_SMTP_PORT" envDefault:"587"`
	Username string `env:"VVEBEHEER_SMTP_USERNAME"`
	Password string `env:"VVEBEHEER_SMTP_PASSWORD"`
	From     string `env:"VVEBEHEER_SMTP_FROM"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The worker health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.StringVar(&cfg.Worker, "worker", cfg.Worker, "Worker name used for mail leases and job runs")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Job poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Mail lease duration")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum delivery attempts before a mail is dead")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base mail retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum mail retry delay")
	fs.DurationVar(&cfg.DuesInterval, "dues-interval", cfg.DuesInterval, "Interval between dues generation runs")
	fs.DurationVar(&cfg.ReminderInterval, "reminder-interval", cfg.ReminderInterval, "Interval between dues reminder runs")
	fs.StringVar(&cfg.ImportDir, "import-dir", cfg.ImportDir, "Drop folder for bank statements; empty disables the import job")
	fs.IntVar(&cfg.GraceDays, "grace-days", cfg.GraceDays, "Days past the period end before a reminder is sent")
	fs.StringVar(&cfg.Sender, "sender", cfg.Sender, "Mail sender: log or smtp")
	fs.StringVar(&cfg.SMTP.Host, "smtp-host", cfg.SMTP.Host, "SMTP server host")
	fs.IntVar(&cfg.SMTP.Port, "smtp-port", cfg.SMTP.Port, "SMTP server port")
	fs.StringVar(&cfg.SMTP.From, "smtp-from", cfg.SMTP.From, "Sender address for outgoing mail")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, entrypoint.RunOptions{Logging: cfg.Logging}, func(ctx context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			Port:             cfg.Port,
			DBPath:           cfg.DBPath,
			Worker:           cfg.Worker,
			PollInterval:     cfg.PollInterval,
			LeaseTTL:         cfg.LeaseTTL,
			MaxAttempts:      cfg.MaxAttempts,
			RetryBackoff:     cfg.RetryBackoff,
			RetryMaxDelay:    cfg.RetryMaxDelay,
			DuesInterval:     cfg.DuesInterval,
			ReminderInterval: cfg.ReminderInterval,
			ImportDir:        cfg.ImportDir,
			GraceDays:        cfg.GraceDays,
			Sender:           cfg.Sender,
			SMTP: mail.SMTPConfig{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
			},
		})
	})
}
