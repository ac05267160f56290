package fan

import "codeberg.org/mutker/fand/internal/errors"

// Status is the operational state of a fan.
type Status int

const (
	Uninitialized Status = iota + 1
	OK
	Fault
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case OK:
		return "ok"
	case Fault:
		return "fault"
	default:
		return "invalid"
	}
}

func (s Status) Valid() bool {
	switch s {
	case Uninitialized, OK, Fault:
		return true
	default:
		return false
	}
}

func ParseStatus(name string) (Status, error) {
	switch name {
	case "uninitialized":
		return Uninitialized, nil
	case "ok":
		return OK, nil
	case "fault":
		return Fault, nil
	default:
		return 0, errors.New().WithData(errors.ErrValidation, struct {
			Field string
			Value string
		}{
			Field: "status",
			Value: name,
		})
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.New().WithData(errors.ErrValidation, "status out of range")
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
