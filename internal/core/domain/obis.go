package domain

import "github.com/berfenger/speedwire2mqtt/pkg/speedwire"

// ObisDefinition binds an obis signature to the measurement it carries.
type ObisDefinition struct {
	Signature speedwire.ObisSignature
	Type      MeasurementType
	Line      Line
}

func (d ObisDefinition) Name() string {
	return d.Type.FullName(d.Line)
}

func obis(index, typ uint8, mt MeasurementType, line Line) ObisDefinition {
	return ObisDefinition{
		Signature: speedwire.ObisSignature{Channel: 0, Index: index, Type: typ, Tariff: 0},
		Type:      mt,
		Line:      line,
	}
}

var (
	mtPositiveActivePower    = NewMeasurementType(DIRECTION_POSITIVE, TYPE_ACTIVE, QUANTITY_POWER, "W", 10)
	mtNegativeActivePower    = NewMeasurementType(DIRECTION_NEGATIVE, TYPE_ACTIVE, QUANTITY_POWER, "W", 10)
	mtSignedActivePower      = NewMeasurementType(DIRECTION_SIGNED, TYPE_ACTIVE, QUANTITY_POWER, "W", 10)
	mtPositiveReactivePower  = NewMeasurementType(DIRECTION_POSITIVE, TYPE_REACTIVE, QUANTITY_POWER, "var", 10)
	mtNegativeReactivePower  = NewMeasurementType(DIRECTION_NEGATIVE, TYPE_REACTIVE, QUANTITY_POWER, "var", 10)
	mtPositiveApparentPower  = NewMeasurementType(DIRECTION_POSITIVE, TYPE_APPARENT, QUANTITY_POWER, "VA", 10)
	mtNegativeApparentPower  = NewMeasurementType(DIRECTION_NEGATIVE, TYPE_APPARENT, QUANTITY_POWER, "VA", 10)
	mtPositiveActiveEnergy   = NewMeasurementType(DIRECTION_POSITIVE, TYPE_ACTIVE, QUANTITY_ENERGY, "kWh", 3600000)
	mtNegativeActiveEnergy   = NewMeasurementType(DIRECTION_NEGATIVE, TYPE_ACTIVE, QUANTITY_ENERGY, "kWh", 3600000)
	mtPositiveReactiveEnergy = NewMeasurementType(DIRECTION_POSITIVE, TYPE_REACTIVE, QUANTITY_ENERGY, "kvarh", 3600000)
	mtNegativeReactiveEnergy = NewMeasurementType(DIRECTION_NEGATIVE, TYPE_REACTIVE, QUANTITY_ENERGY, "kvarh", 3600000)
	mtPositiveApparentEnergy = NewMeasurementType(DIRECTION_POSITIVE, TYPE_APPARENT, QUANTITY_ENERGY, "kVAh", 3600000)
	mtNegativeApparentEnergy = NewMeasurementType(DIRECTION_NEGATIVE, TYPE_APPARENT, QUANTITY_ENERGY, "kVAh", 3600000)
	mtPowerFactor            = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_POWER_FACTOR, "phi", 1000)
	mtFrequency              = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_FREQUENCY, "Hz", 1000)
	mtCurrent                = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_CURRENT, "A", 1000)
	mtVoltage                = NewMeasurementType(DIRECTION_NONE, TYPE_NONE, QUANTITY_VOLTAGE, "V", 1000)
)

// Obis index offsets of the per line blocks relative to the totals.
var obisLineOffsets = []struct {
	offset uint8
	line   Line
}{
	{0, LINE_TOTAL},
	{20, LINE_L1},
	{40, LINE_L2},
	{60, LINE_L3},
}

// ObisDefinitions lists every measurement the energy meter sends.
func ObisDefinitions() []ObisDefinition {
	var defs []ObisDefinition
	for _, l := range obisLineOffsets {
		o, line := l.offset, l.line
		defs = append(defs,
			obis(1+o, speedwire.OBIS_TYPE_ACTUAL, mtPositiveActivePower, line),
			obis(1+o, speedwire.OBIS_TYPE_COUNTER, mtPositiveActiveEnergy, line),
			obis(2+o, speedwire.OBIS_TYPE_ACTUAL, mtNegativeActivePower, line),
			obis(2+o, speedwire.OBIS_TYPE_COUNTER, mtNegativeActiveEnergy, line),
			obis(3+o, speedwire.OBIS_TYPE_ACTUAL, mtPositiveReactivePower, line),
			obis(3+o, speedwire.OBIS_TYPE_COUNTER, mtPositiveReactiveEnergy, line),
			obis(4+o, speedwire.OBIS_TYPE_ACTUAL, mtNegativeReactivePower, line),
			obis(4+o, speedwire.OBIS_TYPE_COUNTER, mtNegativeReactiveEnergy, line),
			obis(9+o, speedwire.OBIS_TYPE_ACTUAL, mtPositiveApparentPower, line),
			obis(9+o, speedwire.OBIS_TYPE_COUNTER, mtPositiveApparentEnergy, line),
			obis(10+o, speedwire.OBIS_TYPE_ACTUAL, mtNegativeApparentPower, line),
			obis(10+o, speedwire.OBIS_TYPE_COUNTER, mtNegativeApparentEnergy, line),
			obis(13+o, speedwire.OBIS_TYPE_ACTUAL, mtPowerFactor, line),
			obis(16+o, speedwire.OBIS_TYPE_SIGNED_CALC, mtSignedActivePower, line),
		)
		if line != LINE_TOTAL {
			defs = append(defs,
				obis(11+o, speedwire.OBIS_TYPE_ACTUAL, mtCurrent, line),
				obis(12+o, speedwire.OBIS_TYPE_ACTUAL, mtVoltage, line),
			)
		}
	}
	defs = append(defs, obis(14, speedwire.OBIS_TYPE_ACTUAL, mtFrequency, LINE_TOTAL))
	return defs
}

// DefaultObisFilter is the set of meter measurements published when nothing else is configured.
var DefaultObisFilter = []string{
	"positive_active_power",
	"negative_active_power",
	"powerfactor",
	"powerfactor_l1",
	"powerfactor_l2",
	"powerfactor_l3",
	"signed_active_power",
	"signed_active_power_l1",
	"signed_active_power_l2",
	"signed_active_power_l3",
}

// FindObisDefinitions resolves measurement names against the obis table, returning unknown names separately.
func FindObisDefinitions(names []string) ([]ObisDefinition, []string) {
	byName := map[string]ObisDefinition{}
	for _, d := range ObisDefinitions() {
		byName[d.Name()] = d
	}
	var found []ObisDefinition
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

// SignedPowerSources pairs each signed power signature with the positive and negative power indices it is derived from.
var SignedPowerSources = []struct {
	Signed   speedwire.ObisSignature
	Positive uint8
	Negative uint8
}{
	{speedwire.ObisSignature{Index: 16, Type: speedwire.OBIS_TYPE_SIGNED_CALC}, 1, 2},
	{speedwire.ObisSignature{Index: 36, Type: speedwire.OBIS_TYPE_SIGNED_CALC}, 21, 22},
	{speedwire.ObisSignature{Index: 56, Type: speedwire.OBIS_TYPE_SIGNED_CALC}, 41, 42},
	{speedwire.ObisSignature{Index: 76, Type: speedwire.OBIS_TYPE_SIGNED_CALC}, 61, 62},
}
