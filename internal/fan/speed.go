// Package fan holds the value types shared by every part of fand: the closed
// enumerations for direction, speed tier and status, the per-fan record that
// is persisted in the configuration store, and the override singleton.
package fan

import (
	"codeberg.org/mutker/fand/internal/errors"
)

// Speed is a fan speed tier. Tiers are ordered from slowest to fastest so
// that policies can take the maximum of several requests.
type Speed int

const (
	Slow Speed = iota + 1
	Normal
	Medium
	Fast
	Max
)

// Speeds lists every tier in ascending order.
func Speeds() []Speed {
	return []Speed{Slow, Normal, Medium, Fast, Max}
}

func (s Speed) String() string {
	switch s {
	case Slow:
		return "slow"
	case Normal:
		return "normal"
	case Medium:
		return "medium"
	case Fast:
		return "fast"
	case Max:
		return "max"
	default:
		return "invalid"
	}
}

// Valid reports whether s is one of the known tiers.
func (s Speed) Valid() bool {
	switch s {
	case Slow, Normal, Medium, Fast, Max:
		return true
	default:
		return false
	}
}

// ParseSpeed converts a tier name into a Speed.
func ParseSpeed(name string) (Speed, error) {
	for _, s := range Speeds() {
		if s.String() == name {
			return s, nil
		}
	}

	return 0, errors.New().WithData(errors.ErrValidation, struct {
		Field string
		Value string
	}{
		Field: "speed",
		Value: name,
	})
}

// Faster returns the faster of two tiers.
func Faster(a, b Speed) Speed {
	if b > a {
		return b
	}
	return a
}

func (s Speed) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.New().WithData(errors.ErrValidation, "speed out of range")
	}
	return []byte(s.String()), nil
}

func (s *Speed) UnmarshalText(b []byte) error {
	v, err := ParseSpeed(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
