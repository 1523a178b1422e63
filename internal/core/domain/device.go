package domain

import (
	"fmt"

	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"
)

type DeviceClass string

const (
	DEVICE_CLASS_EMETER           DeviceClass = "Emeter"
	DEVICE_CLASS_PV_INVERTER      DeviceClass = "PV-Inverter"
	DEVICE_CLASS_BATTERY_INVERTER DeviceClass = "Battery-Inverter"
	DEVICE_CLASS_INVERTER         DeviceClass = "Inverter"
	DEVICE_CLASS_UNKNOWN          DeviceClass = "Unknown"
)

// Device class tags reported in the device class register.
const (
	CLASS_TAG_SOLAR_INVERTER   = 8001
	CLASS_TAG_BATTERY_INVERTER = 8007
	CLASS_TAG_ENERGY_METER     = 8065
)

func DeviceClassFromTag(tag uint32) DeviceClass {
	switch tag {
	case CLASS_TAG_SOLAR_INVERTER:
		return DEVICE_CLASS_PV_INVERTER
	case CLASS_TAG_BATTERY_INVERTER:
		return DEVICE_CLASS_BATTERY_INVERTER
	case CLASS_TAG_ENERGY_METER:
		return DEVICE_CLASS_EMETER
	}
	return DEVICE_CLASS_INVERTER
}

func (c DeviceClass) IsInverter() bool {
	return c == DEVICE_CLASS_PV_INVERTER || c == DEVICE_CLASS_BATTERY_INVERTER || c == DEVICE_CLASS_INVERTER
}

// Device is a discovered speedwire peer.
type Device struct {
	SusyID       uint16      `json:"susy_id"`
	SerialNumber uint32      `json:"serial_number"`
	DeviceClass  DeviceClass `json:"device_class"`
	DeviceModel  string      `json:"device_model"`
	DeviceName   string      `json:"device_name,omitempty"`
	IPAddress    string      `json:"ip_address"`
	InterfaceIP  string      `json:"interface_ip,omitempty"`
}

func (d Device) Address() speedwire.Address {
	return speedwire.Address{SusyID: d.SusyID, SerialNumber: d.SerialNumber}
}

// IsComplete reports whether the device has been identified beyond its ip address.
func (d Device) IsComplete() bool {
	return d.SusyID != 0 && d.SerialNumber != 0 && d.DeviceClass != "" && d.DeviceClass != DEVICE_CLASS_UNKNOWN
}

func (d Device) String() string {
	return fmt.Sprintf("%s %d:%d %s %s", d.DeviceClass, d.SusyID, d.SerialNumber, d.DeviceModel, d.IPAddress)
}
