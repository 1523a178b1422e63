package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_BATTERY         = "battery"
	DEVICE_CLASS_CURRENT         = "current"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_FREQUENCY       = "frequency"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_POWER_FACTOR    = "power_factor"
	DEVICE_CLASS_REACTIVE_POWER  = "reactive_power"
	DEVICE_CLASS_APPARENT_POWER  = "apparent_power"
	DEVICE_CLASS_TEMPERATURE     = "temperature"
	DEVICE_CLASS_VOLTAGE         = "voltage"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

func BridgeDevice(baseTopic string) ComponentDevice {
	return ComponentDevice{
		Id:           fmt.Sprintf("speedwire_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Speedwire2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Speedwire %s", md5HashShort(baseTopic)),
	}
}

func SpeedwireDevice(device Device) ComponentDevice {
	model := device.DeviceModel
	if model == "" {
		model = string(device.DeviceClass)
	}
	return ComponentDevice{
		Id:           fmt.Sprintf("sma_%d_%d", device.SusyID, device.SerialNumber),
		Manufacturer: "SMA",
		Model:        model,
		Name:         fmt.Sprintf("SMA %s %d", device.DeviceClass, device.SerialNumber),
	}
}

func IdDevice(device ComponentDevice) ComponentDevice {
	return ComponentDevice{
		Id:   device.Id,
		Name: device.Name,
	}
}

// SensorId is the state topic id of a measurement of a device.
func SensorId(serial uint32, name string) string {
	return fmt.Sprintf("%d_%s", serial, name)
}

func BridgeSensors(bridgeDevice ComponentDevice) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

// MeasurementSensor builds the Home Assistant sensor of one measurement of a device.
func MeasurementSensor(device ComponentDevice, serial uint32, name string, mt MeasurementType) GenericSensor {
	id := SensorId(serial, name)
	sensor := GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              sensorName(name),
		UnitOfMeasurement: mt.Unit,
		UniqueId:          uniqueId(device.Id, id),
	}
	if mt.Quantity != QUANTITY_STATUS {
		sensor.StateClass = STATE_CLASS_MEASUREMENT
		decimals := Decimals(mt)
		sensor.Precision = &decimals
	}
	switch mt.Quantity {
	case QUANTITY_POWER:
		switch mt.Type {
		case TYPE_REACTIVE:
			sensor.DeviceClass = DEVICE_CLASS_REACTIVE_POWER
		case TYPE_APPARENT:
			sensor.DeviceClass = DEVICE_CLASS_APPARENT_POWER
		default:
			sensor.DeviceClass = DEVICE_CLASS_POWER
		}
	case QUANTITY_ENERGY:
		sensor.StateClass = STATE_CLASS_TOTAL_INCREASING
		if mt.Type == TYPE_ACTIVE {
			sensor.DeviceClass = DEVICE_CLASS_ENERGY
		}
	case QUANTITY_CURRENT:
		sensor.DeviceClass = DEVICE_CLASS_CURRENT
	case QUANTITY_VOLTAGE:
		sensor.DeviceClass = DEVICE_CLASS_VOLTAGE
	case QUANTITY_FREQUENCY:
		sensor.DeviceClass = DEVICE_CLASS_FREQUENCY
	case QUANTITY_TEMPERATURE:
		sensor.DeviceClass = DEVICE_CLASS_TEMPERATURE
	case QUANTITY_PERCENTAGE:
		sensor.DeviceClass = DEVICE_CLASS_BATTERY
	case QUANTITY_POWER_FACTOR:
		sensor.DeviceClass = DEVICE_CLASS_POWER_FACTOR
		sensor.UnitOfMeasurement = ""
	case QUANTITY_STATUS:
		sensor.EntityCategory = ENTITY_CLASS_DIAGNOSTIC
		sensor.EnabledByDefault = optionalBool(true)
		sensor.Icon = "mdi:information-outline"
	}
	return sensor
}

// Decimals is the number of decimals a measurement is published with.
func Decimals(mt MeasurementType) uint {
	switch mt.Quantity {
	case QUANTITY_ENERGY, QUANTITY_POWER_FACTOR:
		return 3
	case QUANTITY_VOLTAGE, QUANTITY_CURRENT, QUANTITY_FREQUENCY:
		return 2
	case QUANTITY_TEMPERATURE, QUANTITY_POWER:
		return 1
	}
	return 0
}

func sensorName(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
