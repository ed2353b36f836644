package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pawsly/pawsly-chat/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultAdminUser = "admin"

	defaultRoomMax           = 10
	defaultRoomWindowSeconds = 60
	defaultDMMax             = 15
	defaultDMWindowSeconds   = 60

	defaultFreshnessSeconds = 300
)

// Config is the global configuration object which is filled via the
// configuration file, environment (prefix PAWCHAT) and command-line flags.
type Config struct {
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	RateLimitConfig   RateLimitConfig   `mapstructure:"rate_limit"`
	PresenceConfig    PresenceConfig    `mapstructure:"presence"`
	OIDCConfigs       []OIDCConfig      `mapstructure:"oidc"`
	LogLevel          string            `mapstructure:"log_level"`
	AdminUser         string            `mapstructure:"admin_user"`
}

// PersistenceConfig selects the storage backend. Type is one of "postgres",
// "sqlite" (DSN is the database DSN / file path) or "buntdb" (DSN is the
// buntdb file, ":memory:" works too).
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// RateLimitConfig holds the sliding-window limits per channel kind.
type RateLimitConfig struct {
	RoomMax           int `mapstructure:"room_max"`
	RoomWindowSeconds int `mapstructure:"room_window_seconds"`
	DMMax             int `mapstructure:"dm_max"`
	DMWindowSeconds   int `mapstructure:"dm_window_seconds"`
}

// PresenceConfig configures the read-side freshness window: an online row
// whose last heartbeat is older than this counts as offline without a write.
type PresenceConfig struct {
	FreshnessSeconds int `mapstructure:"freshness_seconds"`
}

// An OIDCConfig object configures an OpenID Connect provider that is used to
// authenticate users. Clients provide an ID token and the name of the
// provider, the authentication is then performed via verification of the token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"`
}

func (c *Config) FreshnessWindow() time.Duration {
	s := c.PresenceConfig.FreshnessSeconds
	if s <= 0 {
		s = defaultFreshnessSeconds
	}
	return time.Duration(s) * time.Second
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("admin-user", "a", "", "id of the site admin user")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("admin_user", defaultAdminUser)
	viper.SetDefault("rate_limit.room_max", defaultRoomMax)
	viper.SetDefault("rate_limit.room_window_seconds", defaultRoomWindowSeconds)
	viper.SetDefault("rate_limit.dm_max", defaultDMMax)
	viper.SetDefault("rate_limit.dm_window_seconds", defaultDMWindowSeconds)
	viper.SetDefault("presence.freshness_seconds", defaultFreshnessSeconds)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("PAWCHAT")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}
