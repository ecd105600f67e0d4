// Package api parses API command flags and launches the HTTP API.
package api

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/vvebeheer/internal/platform/cmd"
	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	vveapp "github.com/louisbranch/vvebeheer/internal/services/vve/app"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
)

// Config holds API command configuration.
type Config struct {
	Port         int           `env:"VVEBEHEER_API_PORT" envDefault:"8080"`
	DBPath       string        `env:"VVEBEHEER_DB_PATH" envDefault:"data/vvebeheer.db"`
	JWTSecret    string        `env:"VVEBEHEER_JWT_SECRET"`
	JWTIssuer    string        `env:"VVEBEHEER_JWT_ISSUER" envDefault:"vvebeheer"`
	JWTAudience  string        `env:"VVEBEHEER_JWT_AUDIENCE" envDefault:"vvebeheer-api"`
	TokenTTL     time.Duration `env:"VVEBEHEER_TOKEN_TTL" envDefault:"12h"`
	CORSOrigin   string        `env:"VVEBEHEER_CORS_ORIGIN"`
	InviteURL    string        `env:"VVEBEHEER_INVITE_URL" envDefault:"http://localhost:8080/invites/accept"`
	InviteTTL    time.Duration `env:"VVEBEHEER_INVITE_TTL" envDefault:"168h"`
	ProfilesPath string        `env:"VVEBEHEER_IMPORT_PROFILES"`
	RulesPath    string        `env:"VVEBEHEER_CATEGORY_RULES"`
	PingInterval time.Duration `env:"VVEBEHEER_STREAM_PING" envDefault:"30s"`
	Logging      logging.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The HTTP API port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "Allowed browser origin")
	fs.StringVar(&cfg.InviteURL, "invite-url", cfg.InviteURL, "Invite accept page; the token is appended")
	fs.DurationVar(&cfg.InviteTTL, "invite-ttl", cfg.InviteTTL, "How long invite links stay valid")
	fs.StringVar(&cfg.ProfilesPath, "profiles", cfg.ProfilesPath, "YAML file with extra bank import profiles")
	fs.StringVar(&cfg.RulesPath, "rules", cfg.RulesPath, "YAML file with extra categorization rules")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "Access token lifetime")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("VVEBEHEER_JWT_SECRET is required")
	}
	return cfg, nil
}

// Run starts the HTTP API.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAPI, entrypoint.RunOptions{Logging: cfg.Logging}, func(ctx context.Context) error {
		return vveapp.Run(ctx, vveapp.ServerConfig{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			DBPath:       cfg.DBPath,
			CORSOrigin:   cfg.CORSOrigin,
			PingInterval: cfg.PingInterval,
			Compose: vveapp.Config{
				Tokens: account.TokenConfig{
					Secret:   cfg.JWTSecret,
					Issuer:   cfg.JWTIssuer,
					Audience: cfg.JWTAudience,
					TTL:      cfg.TokenTTL,
				},
				InviteURL:    cfg.InviteURL,
				InviteTTL:    cfg.InviteTTL,
				ProfilesPath: cfg.ProfilesPath,
				RulesPath:    cfg.RulesPath,
			},
		})
	})
}
