package events

import (
	"testing"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevice = domain.Device{
	SusyID:       0x017a,
	SerialNumber: 3010538116,
	DeviceClass:  domain.DEVICE_CLASS_PV_INVERTER,
}

func TestSampleToUpdateEvents(t *testing.T) {
	assert := assert.New(t)

	power := domain.NewMeasurementType(domain.DIRECTION_NONE, domain.TYPE_NONE, domain.QUANTITY_POWER, "W", 1)
	events := SampleToUpdateEvents(domain.MeasurementSample{
		Device: testDevice,
		Name:   "dc_power_mpp1",
		Type:   power,
		Value:  2500,
	})
	require.Len(t, events, 1)
	event, ok := events[0].(domain.FloatSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal("3010538116_dc_power_mpp1", event.SensorId())
	assert.Equal(2500.0, event.Value)
	assert.Equal(uint(1), event.Decimals)

	status := domain.NewMeasurementType(domain.DIRECTION_NONE, domain.TYPE_NONE, domain.QUANTITY_STATUS, "", 1)
	events = SampleToUpdateEvents(domain.MeasurementSample{
		Device: testDevice,
		Name:   "operation_status",
		Type:   status,
		Value:  1,
		Text:   "Ok",
	})
	require.Len(t, events, 1)
	text, ok := events[0].(domain.TextSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal("3010538116_operation_status", text.SensorId())
	assert.Equal("Ok", text.Value)
}

func TestEventStreamSink(t *testing.T) {
	assert := assert.New(t)

	stream := eventstream.NewEventStream()
	var received []any
	stream.Subscribe(func(evt any) {
		received = append(received, evt)
	})

	sink := NewEventStreamSink(stream)
	sink.Consume(domain.MeasurementSample{
		Device: testDevice,
		Name:   "dc_power_mpp1",
		Type:   domain.NewMeasurementType(domain.DIRECTION_NONE, domain.TYPE_NONE, domain.QUANTITY_POWER, "W", 1),
		Value:  10,
	})
	sink.EndOfBlock(testDevice, 1234)

	require.Len(t, received, 3)
	assert.IsType(domain.MeasurementUpdateEvent{}, received[0])
	assert.IsType(domain.FloatSensorUpdateEvent{}, received[1])
	assert.Equal(domain.BlockCompletedEvent{Device: testDevice, Timer: 1234}, received[2])
}
