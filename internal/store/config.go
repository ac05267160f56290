package store

import (
	"strings"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/logger"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"

	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/fand/config.db"
)

type Config struct {
	Backend   string
	Path      string
	BackupDir string
	Options   Options
}

func DefaultConfig() Config {
	return Config{
		Backend: BackendSQLite,
		Path:    defaultDBPath,
		Options: DefaultOptions(),
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.Path) == "" {
			return errFactory.New(ErrInvalidDBPath)
		}
	case BackendMemory:
	default:
		return errFactory.WithData(ErrUnsupportedBackend, c.Backend)
	}
	return nil
}

// Open returns the backend selected by cfg.
func Open(cfg Config, log logger.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendMemory {
		log.Info().Msg("Using in-memory configuration store")
		return NewMemory(cfg.Options), nil
	}
	return OpenSQLite(cfg, log)
}
