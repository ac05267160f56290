// Package config loads the daemon configuration from defaults, a TOML file,
// FAND_* environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile   = "/etc/fand.toml"
	DefaultEnvPrefix    = "FAND"
	DefaultInterval     = 5
	DefaultStoreTimeout = 2000
	DefaultStoreRetries = 3
	DefaultDatabase     = "/var/lib/fand/config.db"
	DefaultPlatform     = "/etc/fand/platform.yaml"
	DefaultListen       = "127.0.0.1:7645"
	DefaultLogLevel     = "warning"
	DefaultPIDFile      = "/run/fand.pid"
	DefaultMetricsDB    = "/var/lib/fand/history.db"
)

type Config struct {
	// Interval is the poll interval in seconds.
	Interval int `mapstructure:"interval"`
	// StoreTimeout bounds each store attempt, in milliseconds.
	StoreTimeout int    `mapstructure:"store_timeout"`
	StoreRetries int    `mapstructure:"store_retries"`
	Database     string `mapstructure:"database"`
	BackupDir    string `mapstructure:"backup_dir"`
	Platform     string `mapstructure:"platform"`
	Listen       string `mapstructure:"listen"`
	LogLevel     string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`
	PIDFile      string `mapstructure:"pidfile"`
	Metrics      bool   `mapstructure:"metrics"`
	MetricsDB    string `mapstructure:"metrics_db"`
	Simulation   bool   `mapstructure:"simulation"`

	// ConfigFile is the file actually read, empty if none.
	ConfigFile string `mapstructure:"-"`
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

func (c *Config) StoreAttemptTimeout() time.Duration {
	return time.Duration(c.StoreTimeout) * time.Millisecond
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"interval":      "interval",
	"store-timeout": "store_timeout",
	"store-retries": "store_retries",
	"database":      "database",
	"backup-dir":    "backup_dir",
	"platform":      "platform",
	"listen":        "listen",
	"log-level":     "log_level",
	"log-file":      "log_file",
	"pidfile":       "pidfile",
	"metrics":       "metrics",
	"metrics-db":    "metrics_db",
	"simulation":    "simulation",
}

// NewFlagSet declares the daemon flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Configuration file (default "+DefaultConfigFile+")")
	fs.Int("interval", DefaultInterval, "Hardware poll interval in seconds")
	fs.Int("store-timeout", DefaultStoreTimeout, "Timeout of each configuration store attempt in milliseconds")
	fs.Int("store-retries", DefaultStoreRetries, "Attempts per configuration store call")
	fs.String("database", DefaultDatabase, "Configuration database path, or :memory:")
	fs.String("backup-dir", "", "Directory for database backups taken before schema upgrades")
	fs.String("platform", DefaultPlatform, "Platform hardware description file")
	fs.String("listen", DefaultListen, "Address of the command API")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("log-file", "", "Also log to this file, rotated")
	fs.String("pidfile", DefaultPIDFile, "PID file path")
	fs.Bool("metrics", false, "Record fan sample history")
	fs.String("metrics-db", DefaultMetricsDB, "Sample history database path")
	fs.Bool("simulation", false, "Allow operator-inserted fan rows")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("store_timeout", DefaultStoreTimeout)
	v.SetDefault("store_retries", DefaultStoreRetries)
	v.SetDefault("database", DefaultDatabase)
	v.SetDefault("backup_dir", "")
	v.SetDefault("platform", DefaultPlatform)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("pidfile", DefaultPIDFile)
	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", DefaultMetricsDB)
	v.SetDefault("simulation", false)
}

// Load parses args (without the program name) and merges every source
// into a validated Config.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := NewFlagSet("fand")
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path, explicit := configPath(fs, o)
	if path != "" && !explicit {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.ConfigFile = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configPath resolves the file to read. explicit is false only for the
// built-in default, which may be absent.
func configPath(fs *pflag.FlagSet, o options) (string, bool) {
	if p, _ := fs.GetString("config"); p != "" {
		return p, true
	}
	if o.configPath != "" {
		return o.configPath, true
	}
	if env, ok := os.LookupEnv(o.envPrefix + "_CONFIG"); ok {
		// an empty variable disables the file
		return env, env != ""
	}
	return DefaultConfigFile, false
}

// Validate checks ranges and enum values.
func (c *Config) Validate() error {
	errFactory := errors.New()

	type invalid struct {
		Field string
		Value any
	}

	switch {
	case c.Interval <= 0:
		return errFactory.WithData(errors.ErrInvalidInterval, invalid{Field: "interval", Value: c.Interval})
	case c.StoreTimeout <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, invalid{Field: "store_timeout", Value: c.StoreTimeout})
	case c.StoreRetries < 1:
		return errFactory.WithData(errors.ErrInvalidConfig, invalid{Field: "store_retries", Value: c.StoreRetries})
	case strings.TrimSpace(c.Database) == "":
		return errFactory.WithData(errors.ErrInvalidConfig, invalid{Field: "database", Value: c.Database})
	case strings.TrimSpace(c.Listen) == "":
		return errFactory.WithData(errors.ErrInvalidConfig, invalid{Field: "listen", Value: c.Listen})
	case !LogLevel(strings.ToLower(c.LogLevel)).IsValid():
		return errFactory.WithData(errors.ErrInvalidLogLevel, invalid{Field: "log_level", Value: c.LogLevel})
	case c.Metrics && strings.TrimSpace(c.MetricsDB) == "":
		return errFactory.WithData(errors.ErrInvalidConfig, invalid{Field: "metrics_db", Value: c.MetricsDB})
	}

	return nil
}
