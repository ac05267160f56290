package fan

import "codeberg.org/mutker/fand/internal/errors"

// Direction is the airflow direction of a fan.
type Direction int

const (
	FrontToBack Direction = iota + 1
	BackToFront
)

// String returns the short form stored in the configuration database.
func (d Direction) String() string {
	switch d {
	case FrontToBack:
		return "f2b"
	case BackToFront:
		return "b2f"
	default:
		return "invalid"
	}
}

// Label returns the long form shown to operators.
func (d Direction) Label() string {
	switch d {
	case FrontToBack:
		return "front-to-back"
	case BackToFront:
		return "back-to-front"
	default:
		return "invalid"
	}
}

func (d Direction) Valid() bool {
	switch d {
	case FrontToBack, BackToFront:
		return true
	default:
		return false
	}
}

// ParseDirection accepts both the short and the long form.
func ParseDirection(name string) (Direction, error) {
	switch name {
	case "f2b", "front-to-back":
		return FrontToBack, nil
	case "b2f", "back-to-front":
		return BackToFront, nil
	default:
		return 0, errors.New().WithData(errors.ErrValidation, struct {
			Field string
			Value string
		}{
			Field: "direction",
			Value: name,
		})
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, errors.New().WithData(errors.ErrValidation, "direction out of range")
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
