package port

import (
	"context"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
)

type PacketSender interface {
	SendTo(ip string, datagram []byte) error
	Broadcast(datagram []byte) error
}

type DeviceRegistry interface {
	Devices() []domain.Device
	FindBySerial(serial uint32) (domain.Device, bool)
}

type MeasurementSink interface {
	Consume(sample domain.MeasurementSample)
	EndOfBlock(device domain.Device, timer uint32)
}

type ObisConsumer interface {
	ConsumeObis(device domain.Device, entry *domain.MeasurementEntry)
}

type InverterConsumer interface {
	ConsumeInverter(device domain.Device, entry *domain.MeasurementEntry)
}

type DeviceWaker interface {
	Wake(ctx context.Context, ip string) (int, error)
}

// TagResolver maps status attribute tags to their display names.
type TagResolver interface {
	TagName(tag uint32) (string, bool)
}
