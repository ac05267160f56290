package fan

import "codeberg.org/mutker/fand/internal/errors"

// Record is the state of one physical fan as persisted in the fan table.
type Record struct {
	Name      string    `json:"name"`
	Subsystem string    `json:"subsystem,omitempty"`
	Direction Direction `json:"direction"`
	Speed     Speed     `json:"speed"`
	Status    Status    `json:"status"`
	RPM       int       `json:"rpm"`
}

// Validate rejects records that must never reach the registry or the store.
func (r Record) Validate() error {
	errFactory := errors.New()

	switch {
	case r.Name == "":
		return errFactory.WithData(errors.ErrValidation, "fan name is empty")
	case r.RPM < 0:
		return errFactory.WithData(errors.ErrValidation, struct {
			Field string
			Value int
		}{
			Field: "rpm",
			Value: r.RPM,
		})
	case !r.Direction.Valid():
		return errFactory.WithData(errors.ErrValidation, "unknown direction")
	case !r.Speed.Valid():
		return errFactory.WithData(errors.ErrValidation, "unknown speed tier")
	case !r.Status.Valid():
		return errFactory.WithData(errors.ErrValidation, "unknown status")
	}

	return nil
}

// Placeholder is the row written for a freshly discovered fan before its
// first hardware sample is known.
func Placeholder(name, subsystem string) Record {
	return Record{
		Name:      name,
		Subsystem: subsystem,
		Direction: FrontToBack,
		Speed:     Normal,
		Status:    Uninitialized,
	}
}

// Override is the operator-forced speed singleton. Speed is meaningful only
// while Active is set.
type Override struct {
	Active bool  `json:"active"`
	Speed  Speed `json:"speed,omitempty"`
}

// Effective resolves the speed a fan must run at given the automatic-policy
// input for its subsystem.
func (o Override) Effective(policy Speed) Speed {
	if o.Active {
		return o.Speed
	}
	return policy
}

// Validate checks that an active override names a real tier.
func (o Override) Validate() error {
	if o.Active && !o.Speed.Valid() {
		return errors.New().WithData(errors.ErrValidation, "override speed is not a known tier")
	}
	return nil
}
