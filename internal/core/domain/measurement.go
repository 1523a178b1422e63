package domain

import (
	"fmt"
	"time"
)

type Direction int

const (
	DIRECTION_POSITIVE Direction = iota
	DIRECTION_NEGATIVE
	DIRECTION_SIGNED
	DIRECTION_NONE
)

func (d Direction) String() string {
	switch d {
	case DIRECTION_POSITIVE:
		return "positive"
	case DIRECTION_NEGATIVE:
		return "negative"
	case DIRECTION_SIGNED:
		return "signed"
	}
	return ""
}

type Line int

const (
	LINE_TOTAL Line = iota
	LINE_L1
	LINE_L2
	LINE_L3
	LINE_L1_L2
	LINE_L2_L3
	LINE_L3_L1
	LINE_MPP1
	LINE_MPP2
	LINE_DEVICE_OK
	LINE_RELAY_ON
	LINE_NO_LINE
)

func (l Line) String() string {
	switch l {
	case LINE_TOTAL:
		return "total"
	case LINE_L1:
		return "l1"
	case LINE_L2:
		return "l2"
	case LINE_L3:
		return "l3"
	case LINE_L1_L2:
		return "l1l2"
	case LINE_L2_L3:
		return "l2l3"
	case LINE_L3_L1:
		return "l3l1"
	case LINE_MPP1:
		return "mpp1"
	case LINE_MPP2:
		return "mpp2"
	case LINE_DEVICE_OK:
		return "ok"
	case LINE_RELAY_ON:
		return "on"
	}
	return ""
}

type Quantity int

const (
	QUANTITY_POWER Quantity = iota
	QUANTITY_ENERGY
	QUANTITY_POWER_FACTOR
	QUANTITY_CURRENT
	QUANTITY_VOLTAGE
	QUANTITY_FREQUENCY
	QUANTITY_STATUS
	QUANTITY_TEMPERATURE
	QUANTITY_PERCENTAGE
	QUANTITY_NONE
)

func (q Quantity) String() string {
	switch q {
	case QUANTITY_POWER:
		return "power"
	case QUANTITY_ENERGY:
		return "energy"
	case QUANTITY_POWER_FACTOR:
		return "powerfactor"
	case QUANTITY_CURRENT:
		return "current"
	case QUANTITY_VOLTAGE:
		return "voltage"
	case QUANTITY_FREQUENCY:
		return "frequency"
	case QUANTITY_STATUS:
		return "status"
	case QUANTITY_TEMPERATURE:
		return "temperature"
	case QUANTITY_PERCENTAGE:
		return "percentage"
	}
	return ""
}

type Type int

const (
	TYPE_ACTIVE Type = iota
	TYPE_REACTIVE
	TYPE_APPARENT
	TYPE_NONE
)

func (t Type) String() string {
	switch t {
	case TYPE_ACTIVE:
		return "active"
	case TYPE_REACTIVE:
		return "reactive"
	case TYPE_APPARENT:
		return "apparent"
	}
	return ""
}

// MeasurementType describes what a raw register or obis value measures and how to scale it.
type MeasurementType struct {
	Direction     Direction
	Type          Type
	Quantity      Quantity
	Unit          string
	Divisor       uint64
	Instantaneous bool
}

func NewMeasurementType(direction Direction, typ Type, quantity Quantity, unit string, divisor uint64) MeasurementType {
	return MeasurementType{
		Direction:     direction,
		Type:          typ,
		Quantity:      quantity,
		Unit:          unit,
		Divisor:       divisor,
		Instantaneous: quantity != QUANTITY_ENERGY,
	}
}

// Name joins the non-empty parts of direction, type and quantity with underscores.
func (m MeasurementType) Name() string {
	name := ""
	for _, part := range []string{m.Direction.String(), m.Type.String(), m.Quantity.String()} {
		if part == "" {
			continue
		}
		if name != "" {
			name += "_"
		}
		name += part
	}
	return name
}

// FullName appends the line suffix for everything but totals.
func (m MeasurementType) FullName(line Line) string {
	if line == LINE_TOTAL || line.String() == "" {
		return m.Name()
	}
	return fmt.Sprintf("%s_%s", m.Name(), line)
}

// MeasurementValue holds the latest reading of a measurement together with its running average state.
type MeasurementValue struct {
	Value    float64
	Timer    uint32
	Elapsed  uint32
	SumValue float64
	Counter  uint32
	Initial  bool
}

func NewMeasurementValue() *MeasurementValue {
	return &MeasurementValue{Initial: true}
}

// SetTimer records the sample time; the first sample reports a nominal elapsed time of 1000.
func (v *MeasurementValue) SetTimer(timer uint32) {
	if v.Initial {
		v.Elapsed = 1000
		v.Initial = false
	} else {
		v.Elapsed = timer - v.Timer
	}
	v.Timer = timer
}

func (v *MeasurementValue) SetValue(value float64, timer uint32) {
	v.Value = value
	v.SetTimer(timer)
}

func (v *MeasurementValue) SetUint32(raw uint32, divisor uint64, timer uint32) {
	v.SetValue(float64(raw)/float64(divisor), timer)
}

func (v *MeasurementValue) SetInt32(raw int32, divisor uint64, timer uint32) {
	v.SetValue(float64(raw)/float64(divisor), timer)
}

func (v *MeasurementValue) SetUint64(raw uint64, divisor uint64, timer uint32) {
	v.SetValue(float64(raw)/float64(divisor), timer)
}

func (v *MeasurementValue) Accumulate() {
	v.SumValue += v.Value
	v.Counter++
}

// Average returns the mean of the accumulated values or the latest value when nothing was accumulated.
func (v *MeasurementValue) Average() float64 {
	if v.Counter == 0 {
		return v.Value
	}
	return v.SumValue / float64(v.Counter)
}

func (v *MeasurementValue) ResetAverage() {
	v.SumValue = 0
	v.Counter = 0
}

// MeasurementEntry is the per device slot a filter keeps for one configured measurement.
type MeasurementEntry struct {
	Name  string
	Type  MeasurementType
	Line  Line
	Value *MeasurementValue
	Text  string
}

func NewMeasurementEntry(typ MeasurementType, line Line) *MeasurementEntry {
	return &MeasurementEntry{
		Name:  typ.FullName(line),
		Type:  typ,
		Line:  line,
		Value: NewMeasurementValue(),
	}
}

type MeasurementStream int

const (
	STREAM_OBIS MeasurementStream = iota
	STREAM_INVERTER
)

func (s MeasurementStream) String() string {
	if s == STREAM_OBIS {
		return "obis"
	}
	return "inverter"
}

// MeasurementSample is an averaged value ready for publishing.
type MeasurementSample struct {
	Device       Device
	Stream       MeasurementStream
	Name         string
	Type         MeasurementType
	Line         Line
	Value        float64
	Text         string
	Timer        uint32
	Time         time.Time
	FirstInBlock bool
}
