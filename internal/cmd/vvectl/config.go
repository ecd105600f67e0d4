package vvectl

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/louisbranch/vvebeheer/internal/platform/config"
)

// Setting keys. Each one is also read from VVEBEHEER_<KEY> with dashes as
// underscores, and from the YAML config file.
const (
	keyDBPath        = "db-path"
	keyOperator      = "operator"
	keyInviteURL     = "invite-url"
	keyProfiles      = "profiles"
	keyRules         = "rules"
	keyOutput        = "output"
	keyAdminPassword = "admin-password"
)

// Settings is the resolved CLI configuration.
type Settings struct {
	DBPath       string
	Operator     string
	InviteURL    string
	ProfilesPath string
	RulesPath    string
	Output       string
}

type options struct {
	configFile string
	envFiles   []string
	viper      *viper.Viper
}

func (o *options) bindFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configFile, "config", "", "YAML config file (default ./vvebeheer.yaml when present)")
	flags.StringSliceVar(&o.envFiles, "env-file", []string{".env", ".env.local"}, ".env files loaded before reading the environment")
	flags.String(keyDBPath, "data/vvebeheer.db", "The SQLite database path")
	flags.String(keyOperator, "", "Email of the super admin performing the command")
	flags.String(keyInviteURL, "http://localhost:8080/invites/accept", "Invite accept page; the token is appended")
	flags.String(keyProfiles, "", "YAML file with extra bank import profiles")
	flags.String(keyRules, "", "YAML file with extra categorization rules")
	flags.StringP(keyOutput, "o", FormatAuto, "Output format: auto, table, json or yaml")
	for _, key := range []string{keyDBPath, keyOperator, keyInviteURL, keyProfiles, keyRules, keyOutput} {
		if err := o.viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// load reads .env files, the config file and the environment, in that order
// of increasing precedence. Flags set on the command line win over all.
func (o *options) load() error {
	for _, path := range o.envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	v := o.viper
	v.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", o.configFile, err)
		}
		return nil
	}
	v.SetConfigName("vvebeheer")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (o *options) settings() Settings {
	v := o.viper
	return Settings{
		DBPath:       strings.TrimSpace(v.GetString(keyDBPath)),
		Operator:     strings.TrimSpace(v.GetString(keyOperator)),
		InviteURL:    strings.TrimSpace(v.GetString(keyInviteURL)),
		ProfilesPath: strings.TrimSpace(v.GetString(keyProfiles)),
		RulesPath:    strings.TrimSpace(v.GetString(keyRules)),
		Output:       strings.TrimSpace(v.GetString(keyOutput)),
	}
}
