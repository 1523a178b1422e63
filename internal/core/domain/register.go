package domain

import "github.com/berfenger/speedwire2mqtt/pkg/speedwire"

const (
	REGISTER_TYPE_UNSIGNED = 0x00
	REGISTER_TYPE_STATUS   = 0x08
	REGISTER_TYPE_TEXT     = 0x10
	REGISTER_TYPE_SIGNED   = 0x40

	REGISTER_DEVICE_STATUS = 0x00214800
	REGISTER_GRID_RELAY    = 0x00416400
	REGISTER_DEVICE_NAME   = 0x00821e00
	REGISTER_DEVICE_CLASS  = 0x00821f00
	REGISTER_DEVICE_TYPE   = 0x00822000
)

// RegisterDefinition binds an inverter register to the measurement it carries.
type RegisterDefinition struct {
	Key    speedwire.RegisterKey
	Name   string
	Type   MeasurementType
	Line   Line
	Signed bool
}

func register(cmd speedwire.Command, id uint32, conn, typ uint8, name string, mt MeasurementType, line Line) RegisterDefinition {
	return RegisterDefinition{
		Key:  speedwire.RegisterKey{Command: cmd, RegisterID: id, Connector: conn, Type: typ},
		Name: name,
		Type: mt,
		Line: line,
	}
}

var (
	mtDCPower     = NewMeasurementType(DIRECTION_POSITIVE, TYPE_ACTIVE, QUANTITY_POWER, "W", 1)
	mtDCVoltage   = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_VOLTAGE, "V", 100)
	mtDCCurrent   = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_CURRENT, "A", 1000)
	mtACPower     = NewMeasurementType(DIRECTION_POSITIVE, TYPE_ACTIVE, QUANTITY_POWER, "W", 1)
	mtACVoltage   = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_VOLTAGE, "V", 100)
	mtACCurrent   = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_CURRENT, "A", 1000)
	mtStatus      = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_STATUS, "", 1)
	mtSoC         = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_PERCENTAGE, "%", 1)
	mtTemperature = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_TEMPERATURE, "°C", 10)
	mtBattPower   = NewMeasurementType(DIRECTION_SIGNED, TYPE_ACTIVE, QUANTITY_POWER, "W", 1)
)

// RegisterDefinitions lists the inverter registers that can be decoded into measurements.
func RegisterDefinitions() []RegisterDefinition {
	battPower := register(speedwire.AC_QUERY, 0x00263f00, 0x01, REGISTER_TYPE_SIGNED, "battery_power", mtBattPower, LINE_TOTAL)
	battPower.Signed = true
	return []RegisterDefinition{
		register(speedwire.DC_QUERY, 0x00251e00, 0x01, REGISTER_TYPE_SIGNED, "dc_power_mpp1", mtDCPower, LINE_MPP1),
		register(speedwire.DC_QUERY, 0x00251e00, 0x02, REGISTER_TYPE_SIGNED, "dc_power_mpp2", mtDCPower, LINE_MPP2),
		register(speedwire.DC_QUERY, 0x00451f00, 0x01, REGISTER_TYPE_SIGNED, "dc_voltage_mpp1", mtDCVoltage, LINE_MPP1),
		register(speedwire.DC_QUERY, 0x00451f00, 0x02, REGISTER_TYPE_SIGNED, "dc_voltage_mpp2", mtDCVoltage, LINE_MPP2),
		register(speedwire.DC_QUERY, 0x00452100, 0x01, REGISTER_TYPE_SIGNED, "dc_current_mpp1", mtDCCurrent, LINE_MPP1),
		register(speedwire.DC_QUERY, 0x00452100, 0x02, REGISTER_TYPE_SIGNED, "dc_current_mpp2", mtDCCurrent, LINE_MPP2),

		register(speedwire.AC_QUERY, 0x00464000, 0x01, REGISTER_TYPE_SIGNED, "ac_power_l1", mtACPower, LINE_L1),
		register(speedwire.AC_QUERY, 0x00464100, 0x01, REGISTER_TYPE_SIGNED, "ac_power_l2", mtACPower, LINE_L2),
		register(speedwire.AC_QUERY, 0x00464200, 0x01, REGISTER_TYPE_SIGNED, "ac_power_l3", mtACPower, LINE_L3),
		register(speedwire.AC_QUERY, 0x00464800, 0x01, REGISTER_TYPE_UNSIGNED, "ac_voltage_l1", mtACVoltage, LINE_L1),
		register(speedwire.AC_QUERY, 0x00464900, 0x01, REGISTER_TYPE_UNSIGNED, "ac_voltage_l2", mtACVoltage, LINE_L2),
		register(speedwire.AC_QUERY, 0x00464a00, 0x01, REGISTER_TYPE_UNSIGNED, "ac_voltage_l3", mtACVoltage, LINE_L3),
		register(speedwire.AC_QUERY, 0x00464b00, 0x01, REGISTER_TYPE_UNSIGNED, "ac_voltage_l1l2", mtACVoltage, LINE_L1_L2),
		register(speedwire.AC_QUERY, 0x00464c00, 0x01, REGISTER_TYPE_UNSIGNED, "ac_voltage_l2l3", mtACVoltage, LINE_L2_L3),
		register(speedwire.AC_QUERY, 0x00464d00, 0x01, REGISTER_TYPE_UNSIGNED, "ac_voltage_l3l1", mtACVoltage, LINE_L3_L1),
		register(speedwire.AC_QUERY, 0x00465300, 0x01, REGISTER_TYPE_SIGNED, "ac_current_l1", mtACCurrent, LINE_L1),
		register(speedwire.AC_QUERY, 0x00465400, 0x01, REGISTER_TYPE_SIGNED, "ac_current_l2", mtACCurrent, LINE_L2),
		register(speedwire.AC_QUERY, 0x00465500, 0x01, REGISTER_TYPE_SIGNED, "ac_current_l3", mtACCurrent, LINE_L3),

		register(speedwire.STATUS_QUERY, REGISTER_DEVICE_STATUS, 0x01, REGISTER_TYPE_STATUS, "operation_status", mtStatus, LINE_DEVICE_OK),
		register(speedwire.STATUS_QUERY, REGISTER_GRID_RELAY, 0x01, REGISTER_TYPE_STATUS, "relay_status", mtStatus, LINE_RELAY_ON),

		register(speedwire.AC_QUERY, 0x00295a00, 0x01, REGISTER_TYPE_UNSIGNED, "battery_soc", mtSoC, LINE_TOTAL),
		register(speedwire.AC_QUERY, 0x00495b00, 0x01, REGISTER_TYPE_SIGNED, "battery_temperature", mtTemperature, LINE_TOTAL),
		battPower,
		register(speedwire.STATUS_QUERY|speedwire.COMPONENT_2, 0x00495c00, 0x01, REGISTER_TYPE_STATUS, "battery_operation_status", mtStatus, LINE_DEVICE_OK),
		register(speedwire.STATUS_QUERY|speedwire.COMPONENT_2, REGISTER_GRID_RELAY, 0x01, REGISTER_TYPE_STATUS, "battery_relay_status", mtStatus, LINE_RELAY_ON),
	}
}

// DefaultRegisterFilter is the set of inverter measurements published when nothing else is configured.
var DefaultRegisterFilter = []string{
	"dc_power_mpp1",
	"dc_power_mpp2",
	"dc_voltage_mpp1",
	"dc_voltage_mpp2",
	"dc_current_mpp1",
	"dc_current_mpp2",
	"ac_power_l1",
	"ac_power_l2",
	"ac_power_l3",
	"operation_status",
	"relay_status",
	"battery_soc",
	"battery_temperature",
	"battery_power",
	"battery_operation_status",
	"battery_relay_status",
}

const REGISTER_NAME_MPP1_POWER = "dc_power_mpp1"

func FindRegisterDefinitions(names []string) ([]RegisterDefinition, []string) {
	byName := map[string]RegisterDefinition{}
	for _, d := range RegisterDefinitions() {
		byName[d.Name] = d
	}
	var found []RegisterDefinition
	var unknown []string
	for _, n := range names {
		if d, ok := byName[n]; ok {
			found = append(found, d)
		} else {
			unknown = append(unknown, n)
		}
	}
	return found, unknown
}
