package models

import "slices"

// SensorType names the kind of measurement a reading carries.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorHumidity    SensorType = "humidity"
)

// Bounds of an accepted reading value, inclusive.
const (
	SensorMin = 0
	SensorMax = 100
)

// ValidSensorTypes lists every accepted sensor type in a fixed order.
var ValidSensorTypes = []SensorType{SensorTemperature, SensorHumidity}

// Valid reports whether t is one of ValidSensorTypes.
func (t SensorType) Valid() bool {
	return slices.Contains(ValidSensorTypes, t)
}

// Reading is one sensor observation. ID is assigned by the store on insert
// and orders readings by insertion.
type Reading struct {
	ID          uint64     `json:"-"`
	DeviceUUID  string     `json:"device_uuid"`
	Type        SensorType `json:"type"`
	Value       int        `json:"value"`
	DateCreated int64      `json:"date_created"`
}
