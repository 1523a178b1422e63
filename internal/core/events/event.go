package events

import (
	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/eventstream"
)

// SampleToUpdateEvents converts an averaged sample into the sensor events published on MQTT.
func SampleToUpdateEvents(sample domain.MeasurementSample) []any {
	var events []any

	id := domain.SensorId(sample.Device.SerialNumber, sample.Name)

	// status registers carry a tag name next to the numeric value
	if sample.Type.Quantity == domain.QUANTITY_STATUS && sample.Text != "" {
		events = append(events, domain.TextSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
				Id: id,
			},
			Value: sample.Text,
		})
		return events
	}

	events = append(events, domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: id,
		},
		Value:    sample.Value,
		Decimals: domain.Decimals(sample.Type),
	})
	return events
}

// EventStreamSink publishes averaged samples to the actor system event stream.
type EventStreamSink struct {
	stream *eventstream.EventStream
}

func NewEventStreamSink(stream *eventstream.EventStream) *EventStreamSink {
	return &EventStreamSink{stream: stream}
}

func (s *EventStreamSink) Consume(sample domain.MeasurementSample) {
	s.stream.Publish(domain.MeasurementUpdateEvent{Sample: sample})
	for _, event := range SampleToUpdateEvents(sample) {
		s.stream.Publish(event)
	}
}

func (s *EventStreamSink) EndOfBlock(device domain.Device, timer uint32) {
	s.stream.Publish(domain.BlockCompletedEvent{Device: device, Timer: timer})
}

// ensure interface compliance
var _ port.MeasurementSink = (*EventStreamSink)(nil)
