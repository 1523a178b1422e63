package domain

// ComponentDevice is the Home Assistant device the sensors of a speedwire device or of the bridge hang from.
type ComponentDevice struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

// GenericSensor is one Home Assistant entity announced through MQTT discovery.
type GenericSensor struct {
	Device            ComponentDevice
	Id                string
	SensorType        string // sensor, binary_sensor
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	Precision         *uint  // decimals shown, nil for status text
	StateClass        string // measurement, total_increasing
	DeviceClass       string
	EntityCategory    string // diagnostic or empty
	EnabledByDefault  *bool
	Icon              string
}
