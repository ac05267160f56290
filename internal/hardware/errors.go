package hardware

import "codeberg.org/mutker/fand/internal/errors"

const (
	ErrDescriptionRead    = errors.ErrorCode("hardware_description_read_failed")
	ErrDescriptionInvalid = errors.ErrorCode("hardware_description_invalid")
	ErrUnknownFan         = errors.ErrorCode("hardware_unknown_fan")
	ErrUnknownSubsystem   = errors.ErrorCode("hardware_unknown_subsystem")
	ErrReadFailed         = errors.ErrHardwareRead
	ErrSetSpeedFailed     = errors.ErrorCode("hardware_set_speed_failed")
	ErrWatchFailed        = errors.ErrorCode("hardware_watch_failed")
)
