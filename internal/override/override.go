// Package override owns the operator speed override. The controller only
// ever writes the singleton override row; fanning the forced tier out to the
// fan rows is the synchronization loop's job.
package override

import (
	"context"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/logger"
)

// Store is the slice of the configuration store the controller needs.
type Store interface {
	ReadOverride(ctx context.Context) (fan.Override, error)
	WriteOverride(ctx context.Context, o fan.Override) error
}

type Controller struct {
	store  Store
	logger logger.Logger
}

func New(store Store, log logger.Logger) *Controller {
	return &Controller{store: store, logger: log}
}

// Set forces every fan to tier.
func (c *Controller) Set(ctx context.Context, tier fan.Speed) error {
	if !tier.Valid() {
		return errors.New().WithData(errors.ErrValidation, struct {
			Field string
			Value int
		}{
			Field: "speed",
			Value: int(tier),
		})
	}

	o := fan.Override{Active: true, Speed: tier}
	if err := c.store.WriteOverride(ctx, o); err != nil {
		return err
	}

	c.logger.Info().Str("speed", tier.String()).Msg("Fan speed override set")
	return nil
}

// SetNamed parses an operator-supplied tier name and sets it. Unknown names
// are rejected before anything is written.
func (c *Controller) SetNamed(ctx context.Context, name string) (fan.Speed, error) {
	tier, err := fan.ParseSpeed(name)
	if err != nil {
		return 0, err
	}
	return tier, c.Set(ctx, tier)
}

// Clear returns control to the automatic policy. Clearing an inactive
// override succeeds.
func (c *Controller) Clear(ctx context.Context) error {
	if err := c.store.WriteOverride(ctx, fan.Override{}); err != nil {
		return err
	}

	c.logger.Info().Msg("Fan speed override cleared")
	return nil
}

func (c *Controller) Current(ctx context.Context) (fan.Override, error) {
	return c.store.ReadOverride(ctx)
}
