package entity

import "github.com/sirupsen/logrus"

type Sensor struct {
	base
	description SensorDescription
}

func NewSensor(api API, source DataSource, logger logrus.FieldLogger, scooterID string, description SensorDescription) *Sensor {
	return &Sensor{
		base:        newBase(api, source, logger, scooterID, description.Key, description.Name, description.Icon, PlatformSensor),
		description: description,
	}
}

// Value returns the raw field, or nil when the scooter or field is absent
func (s *Sensor) Value() any {
	v, _ := s.field(s.description.Key)
	return v
}

func (s *Sensor) Unit() string {
	return s.description.Unit
}
