package service

import (
	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"go.uber.org/zap"
)

type obisSlotKey struct {
	serial    uint32
	signature speedwire.ObisSignature
}

// ObisFilter turns the configured obis elements of meter datagrams into measurements and hands them to its consumers.
type ObisFilter struct {
	definitions map[speedwire.ObisSignature]domain.ObisDefinition
	slots       map[obisSlotKey]*domain.MeasurementEntry
	consumers   []port.ObisConsumer
	logger      *zap.Logger
}

func NewObisFilter(logger *zap.Logger) *ObisFilter {
	return &ObisFilter{
		definitions: map[speedwire.ObisSignature]domain.ObisDefinition{},
		slots:       map[obisSlotKey]*domain.MeasurementEntry{},
		logger:      logger,
	}
}

func (f *ObisFilter) AddFilter(defs ...domain.ObisDefinition) {
	for _, d := range defs {
		f.definitions[d.Signature] = d
	}
}

func (f *ObisFilter) AddConsumer(c port.ObisConsumer) {
	f.consumers = append(f.consumers, c)
}

func (f *ObisFilter) Definitions() []domain.ObisDefinition {
	defs := make([]domain.ObisDefinition, 0, len(f.definitions))
	for _, d := range f.definitions {
		defs = append(defs, d)
	}
	return defs
}

// Consume decodes the element if its signature is configured. It returns false for unconfigured elements.
func (f *ObisFilter) Consume(device domain.Device, element speedwire.ObisElement, timer uint32) bool {
	sig := element.Signature()
	def, ok := f.definitions[sig]
	if !ok {
		return false
	}

	key := obisSlotKey{serial: device.SerialNumber, signature: sig}
	entry, ok := f.slots[key]
	if !ok {
		entry = domain.NewMeasurementEntry(def.Type, def.Line)
		f.slots[key] = entry
	}

	switch sig.Type {
	case speedwire.OBIS_TYPE_ACTUAL:
		v, ok := element.Uint32()
		if !ok {
			f.logger.Debug("obis: short element", zap.Stringer("signature", sig))
			return true
		}
		entry.Value.SetUint32(v, def.Type.Divisor, timer)
	case speedwire.OBIS_TYPE_SIGNED_CALC:
		v, ok := element.Uint32()
		if !ok {
			f.logger.Debug("obis: short element", zap.Stringer("signature", sig))
			return true
		}
		entry.Value.SetInt32(int32(v), def.Type.Divisor, timer)
	case speedwire.OBIS_TYPE_COUNTER:
		v, ok := element.Uint64()
		if !ok {
			f.logger.Debug("obis: short element", zap.Stringer("signature", sig))
			return true
		}
		entry.Value.SetUint64(v, def.Type.Divisor, timer)
	default:
		f.logger.Warn("obis: unsupported element type", zap.Stringer("signature", sig))
		return true
	}

	for _, c := range f.consumers {
		c.ConsumeObis(device, entry)
	}
	return true
}

// Entry returns the slot of a measurement of a device, if it has received a value.
func (f *ObisFilter) Entry(serial uint32, sig speedwire.ObisSignature) (*domain.MeasurementEntry, bool) {
	e, ok := f.slots[obisSlotKey{serial: serial, signature: sig}]
	return e, ok
}
