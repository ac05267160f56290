package hardware

import (
	"os"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"gopkg.in/yaml.v3"
)

const defaultMultiplier = 1

// Description is the platform hardware description file.
type Description struct {
	Subsystems []SubsystemDesc `yaml:"subsystems"`
}

type SubsystemDesc struct {
	Name        string       `yaml:"name"`
	Multiplier  int          `yaml:"fan_speed_multiplier"`
	TempSensors []SensorDesc `yaml:"temp_sensors"`
	FanFRUs     []FanFRUDesc `yaml:"fan_frus"`
}

type SensorDesc struct {
	Name     string `yaml:"name"`
	FanState string `yaml:"fan_state"`
}

// FanFRUDesc is a field-replaceable fan tray; all of its fans share one
// airflow direction.
type FanFRUDesc struct {
	Number    int       `yaml:"number"`
	Direction string    `yaml:"direction"`
	Fans      []FanDesc `yaml:"fans"`
}

// FanDesc carries the simulated register contents of one fan: the raw
// tachometer count, the fault bit, and whether the device answers at all.
type FanDesc struct {
	Name        string `yaml:"name"`
	Count       int    `yaml:"count"`
	Fault       bool   `yaml:"fault"`
	Unreachable bool   `yaml:"unreachable"`
}

// LoadDescription reads and validates a description file.
func LoadDescription(path string) (*Description, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errFactory.WithData(ErrDescriptionRead, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	return ParseDescription(data)
}

// ParseDescription decodes and validates YAML description data.
func ParseDescription(data []byte) (*Description, error) {
	errFactory := errors.New()

	var desc Description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, errFactory.Wrap(ErrDescriptionInvalid, err)
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}

	return &desc, nil
}

// Validate checks names, enum values and counts.
func (d *Description) Validate() error {
	errFactory := errors.New()
	seen := make(map[string]bool)
	// qualified names must be unique across subsystems: "a-b"/"c" and
	// "a"/"b-c" both qualify to "a-b-c"
	qualified := make(map[string]string)

	for i := range d.Subsystems {
		sub := &d.Subsystems[i]
		if sub.Name == "" {
			return errFactory.WithData(ErrDescriptionInvalid, "subsystem without a name")
		}
		if seen[sub.Name] {
			return errFactory.WithData(ErrDescriptionInvalid, "duplicate subsystem "+sub.Name)
		}
		seen[sub.Name] = true

		if sub.Multiplier < 0 {
			return errFactory.WithData(ErrDescriptionInvalid, "negative fan_speed_multiplier in "+sub.Name)
		}

		for _, s := range sub.TempSensors {
			if _, err := fan.ParseSpeed(s.FanState); err != nil {
				return errFactory.Wrap(ErrDescriptionInvalid, err)
			}
		}

		fans := make(map[string]bool)
		for _, fru := range sub.FanFRUs {
			if fru.Direction != "" {
				if _, err := fan.ParseDirection(fru.Direction); err != nil {
					return errFactory.Wrap(ErrDescriptionInvalid, err)
				}
			}
			for _, f := range fru.Fans {
				if f.Name == "" || fans[f.Name] {
					return errFactory.WithData(ErrDescriptionInvalid, "missing or duplicate fan name in "+sub.Name)
				}
				if f.Count < 0 {
					return errFactory.WithData(ErrDescriptionInvalid, "negative count for fan "+f.Name)
				}
				fans[f.Name] = true

				name := FanName(sub.Name, f.Name)
				if owner, dup := qualified[name]; dup {
					return errFactory.WithData(ErrDescriptionInvalid, "fan "+name+" of "+sub.Name+" clashes with a fan of "+owner)
				}
				qualified[name] = sub.Name
			}
		}
	}

	return nil
}

func (s *SubsystemDesc) multiplier() int {
	if s.Multiplier == 0 {
		return defaultMultiplier
	}
	return s.Multiplier
}
