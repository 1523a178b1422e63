package domain

// SensorUpdateEvent is a value to be published on the state topic of a sensor.
type SensorUpdateEvent interface {
	SensorId() string
}

type SensorUpdateEventMixIn struct {
	Id string
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

// FloatSensorUpdateEvent is a numeric measurement, formatted with Decimals.
type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

// TextSensorUpdateEvent is a status measurement resolved to its tag name.
type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

// MeasurementUpdateEvent carries one averaged sample on the event stream.
type MeasurementUpdateEvent struct {
	Sample MeasurementSample
}

// BlockCompletedEvent marks the end of a query round for an inverter.
type BlockCompletedEvent struct {
	Device Device
	Timer  uint32
}

// ensure interface compliance
var _ SensorUpdateEvent = FloatSensorUpdateEvent{}
var _ SensorUpdateEvent = TextSensorUpdateEvent{}
