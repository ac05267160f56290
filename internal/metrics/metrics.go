// Package metrics records what each reconciliation pass observed: live
// Prometheus gauges and counters, and optionally a SQLite sample history.
package metrics

import (
	"context"
	"net/http"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/logger"
)

// ErrHistoryDisabled is returned by History when no repository is configured.
var ErrHistoryDisabled = errors.New().WithMessage(errors.ErrNotFound, "sample history is disabled")

type Service struct {
	exporter *Exporter
	repo     *HistoryRepository
	cfg      Config
	logger   logger.Logger
}

// No-op implementation
type noopCollector struct{}

func NewService(cfg Config, log logger.Logger) (*Service, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	s := &Service{
		exporter: NewExporter(),
		cfg:      cfg,
		logger:   log,
	}

	if !cfg.Enabled {
		log.Debug().Msg("Sample history disabled, exporting live metrics only")
		return s, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}
	s.repo = repo

	log.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("Metrics service initialized successfully")

	return s, nil
}

func (s *Service) Record(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.exporter.Record(ctx, snapshot); err != nil {
		return errFactory.Wrap(ErrMetricsCollection, err)
	}
	if s.repo != nil {
		if err := s.repo.Record(snapshot); err != nil {
			return errFactory.Wrap(ErrMetricsCollection, err)
		}
	}

	return nil
}

// Handler serves the Prometheus exposition format.
func (s *Service) Handler() http.Handler {
	return s.exporter.Handler()
}

func (s *Service) History(ctx context.Context, name string, limit int) ([]Sample, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return s.repo.History(ctx, name, limit)
}

func (s *Service) Close() error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

// Noop returns a Collector that discards everything.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) Record(_ context.Context, _ *Snapshot) error {
	return nil
}

func (noopCollector) Close() error {
	return nil
}
