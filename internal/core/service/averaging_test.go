package service

import (
	"testing"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	energyType = domain.NewMeasurementType(domain.DIRECTION_POSITIVE, domain.TYPE_ACTIVE, domain.QUANTITY_ENERGY, "kWh", 3600000)
	powerType  = domain.NewMeasurementType(domain.DIRECTION_POSITIVE, domain.TYPE_ACTIVE, domain.QUANTITY_POWER, "W", 10)
)

func newTestProcessor(obisMillis, inverterMillis uint32) (*AveragingProcessor, *recordingSink) {
	sink := &recordingSink{}
	p := NewAveragingProcessor(obisMillis, inverterMillis, sink)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p, sink
}

func TestAveragingEmitsCumulativeMean(t *testing.T) {
	assert := assert.New(t)

	p, sink := newTestProcessor(3000, 60000)
	energy := domain.NewMeasurementEntry(energyType, domain.LINE_TOTAL)

	for i, v := range []float64{10, 20, 30} {
		energy.Value.SetValue(v, uint32(1000*(i+1)))
		p.ConsumeObis(testMeter, energy)
	}
	assert.Empty(sink.samples, "window not reached yet")

	energy.Value.SetValue(40, 4000)
	p.ConsumeObis(testMeter, energy)
	require.Len(t, sink.samples, 1)

	s := sink.samples[0]
	assert.InDelta(20.0, s.Value, 1e-9)
	assert.Equal(domain.STREAM_OBIS, s.Stream)
	assert.Equal("positive_active_energy", s.Name)
	assert.Equal(uint32(4000), s.Timer)
	assert.True(s.FirstInBlock)
	assert.Equal(testMeter.SerialNumber, s.Device.SerialNumber)
	assert.Equal(time.Unix(1700000000, 0), s.Time)

	assert.Equal(uint32(0), energy.Value.Counter, "average is reset after emission")

	w, ok := p.Window(domain.STREAM_OBIS, testMeter.SerialNumber)
	require.True(t, ok)
	assert.Equal(uint32(0), w.Remainder)
	assert.True(w.WindowReached)
}

func TestAveragingInstantaneousValuesAreNotAveraged(t *testing.T) {
	assert := assert.New(t)

	p, sink := newTestProcessor(2000, 60000)
	power := domain.NewMeasurementEntry(powerType, domain.LINE_L1)

	for i, v := range []float64{100, 200, 300} {
		power.Value.SetValue(v, uint32(1000*(i+1)))
		p.ConsumeObis(testMeter, power)
	}
	require.Len(t, sink.samples, 1)
	assert.Equal(300.0, sink.samples[0].Value)
	assert.Equal(domain.LINE_L1, sink.samples[0].Line)
	assert.Equal(uint32(0), power.Value.Counter)
}

func TestAveragingSameTimerIsIdempotent(t *testing.T) {
	assert := assert.New(t)

	p, _ := newTestProcessor(3000, 60000)
	energy := domain.NewMeasurementEntry(energyType, domain.LINE_TOTAL)

	energy.Value.SetValue(10, 1000)
	p.ConsumeObis(testMeter, energy)
	energy.Value.SetValue(20, 2000)
	p.ConsumeObis(testMeter, energy)

	before, _ := p.Window(domain.STREAM_OBIS, testMeter.SerialNumber)
	other := domain.NewMeasurementEntry(energyType, domain.LINE_L1)
	other.Value.SetValue(5, 2000)
	p.ConsumeObis(testMeter, other)
	after, _ := p.Window(domain.STREAM_OBIS, testMeter.SerialNumber)

	assert.Equal(before, after, "elements of the same datagram do not advance the window")
	assert.Equal(uint32(1000), after.Remainder)
}

func TestAveragingAllElementsOfBoundaryDatagramAreEmitted(t *testing.T) {
	assert := assert.New(t)

	p, sink := newTestProcessor(1000, 60000)
	a := domain.NewMeasurementEntry(energyType, domain.LINE_TOTAL)
	b := domain.NewMeasurementEntry(powerType, domain.LINE_TOTAL)

	for _, timer := range []uint32{1000, 2000} {
		a.Value.SetValue(1, timer)
		p.ConsumeObis(testMeter, a)
		b.Value.SetValue(2, timer)
		p.ConsumeObis(testMeter, b)
	}
	require.Len(t, sink.samples, 2)
	assert.True(sink.samples[0].FirstInBlock)
	assert.False(sink.samples[1].FirstInBlock)
}

func TestAveragingWindowsArePerDevice(t *testing.T) {
	assert := assert.New(t)

	p, sink := newTestProcessor(2000, 60000)
	other := testMeter
	other.SerialNumber++
	a := domain.NewMeasurementEntry(energyType, domain.LINE_TOTAL)
	b := domain.NewMeasurementEntry(energyType, domain.LINE_TOTAL)

	for _, timer := range []uint32{1000, 2000} {
		a.Value.SetValue(1, timer)
		p.ConsumeObis(testMeter, a)
	}
	b.Value.SetValue(1, 50000)
	p.ConsumeObis(other, b)

	wa, _ := p.Window(domain.STREAM_OBIS, testMeter.SerialNumber)
	wb, _ := p.Window(domain.STREAM_OBIS, other.SerialNumber)
	assert.Equal(uint32(1000), wa.Remainder)
	assert.Equal(uint32(0), wb.Remainder)
	assert.Empty(sink.samples)
}

func TestAveragingInverterUsesSecondsAndTolerance(t *testing.T) {
	assert := assert.New(t)

	p, sink := newTestProcessor(1000, 60000)
	power := domain.NewMeasurementEntry(energyType, domain.LINE_MPP1)

	power.Value.SetValue(100, 1000)
	p.ConsumeInverter(testInverter, power)

	// replies of one round may differ by a second or two
	late := domain.NewMeasurementEntry(energyType, domain.LINE_MPP2)
	late.Value.SetValue(7, 1002)
	p.ConsumeInverter(testInverter, late)
	w, _ := p.Window(domain.STREAM_INVERTER, testInverter.SerialNumber)
	assert.Equal(uint32(0), w.Remainder)

	power.Value.SetValue(200, 1030)
	p.ConsumeInverter(testInverter, power)
	w, _ = p.Window(domain.STREAM_INVERTER, testInverter.SerialNumber)
	assert.Equal(uint32(30), w.Remainder)
	assert.Empty(sink.samples)

	power.Value.SetValue(300, 1060)
	p.ConsumeInverter(testInverter, power)
	require.Len(t, sink.samples, 1)
	assert.InDelta(150.0, sink.samples[0].Value, 1e-9)
	assert.Equal(domain.STREAM_INVERTER, sink.samples[0].Stream)
}

func TestAveragingEndOfBlock(t *testing.T) {
	p, sink := newTestProcessor(1000, 60000)

	p.EndOfBlock(testInverter, 1234)
	require.Len(t, sink.blocks, 1)
	assert.Equal(t, testInverter.SerialNumber, sink.blocks[0].device.SerialNumber)
	assert.Equal(t, uint32(1234), sink.blocks[0].timer)
}
