package store

import "codeberg.org/mutker/fand/internal/errors"

const (
	ErrUnavailable        = errors.ErrStoreUnavailable
	ErrInvalidDBPath      = errors.ErrorCode("store_invalid_db_path")
	ErrStorageInit        = errors.ErrorCode("store_init_failed")
	ErrStorageClose       = errors.ErrorCode("store_close_failed")
	ErrTransactionFailed  = errors.ErrorCode("store_transaction_failed")
	ErrCorruptRow         = errors.ErrorCode("store_corrupt_row")
	ErrSubsystemNotFound  = errors.ErrorCode("store_subsystem_not_found")
	ErrUnsupportedBackend = errors.ErrorCode("store_unsupported_backend")
)
