package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/fand/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestFactoryMessages(t *testing.T) {
	f := errors.New()

	err := f.New(errors.ErrStoreUnavailable)
	assert.Equal(t, "Configuration store unavailable", err.Error())

	wrapped := f.Wrap(errors.ErrHardwareRead, fmt.Errorf("i2c timeout"))
	assert.Equal(t, "Failed to read fan hardware: i2c timeout", wrapped.Error())

	withData := f.WithData(errors.ErrValidation, "unknown speed tier \"turbo\"")
	assert.Equal(t, "Validation failed: unknown speed tier \"turbo\"", withData.Error())

	custom := f.WithMessage(errors.ErrInvalidConfig, "interval must be positive")
	assert.Equal(t, "interval must be positive", custom.Error())
}

func TestHasCodeWalksChain(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrStoreUnavailable)
	outer := f.Wrap(errors.ErrTimeout, inner)
	plain := fmt.Errorf("write fan row: %w", outer)

	assert.True(t, errors.HasCode(plain, errors.ErrTimeout))
	assert.True(t, errors.HasCode(plain, errors.ErrStoreUnavailable))
	assert.False(t, errors.HasCode(plain, errors.ErrValidation))
	assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.ErrValidation))
	assert.False(t, errors.HasCode(nil, errors.ErrValidation))
}

func TestCodeOf(t *testing.T) {
	f := errors.New()
	assert.Equal(t, errors.ErrValidation, errors.CodeOf(f.New(errors.ErrValidation)))
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(fmt.Errorf("boom")))
}
