package metrics

import "codeberg.org/mutker/fand/internal/errors"

const (
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/fand/history.db"
	defaultBatchSize    = 64
	defaultBatchTimeout = 30 // seconds
)

type Config struct {
	DBPath       string
	BackupDir    string
	BatchSize    int
	BatchTimeout int
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if history is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch settings must not be negative")
	}
	return nil
}
