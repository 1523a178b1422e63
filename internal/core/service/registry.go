package service

import (
	"strconv"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"go.uber.org/zap"
)

const (
	// records shorter than this carry no usable value
	MIN_RECORD_DATA_SIZE = 20

	darknessUnsigned uint32 = 0xffffffff
	darknessSigned   uint32 = 0x80000000

	attributeMask   uint32 = 0x00ffffff
	attributeEnd    uint32 = 0x00fffffd
	attributeActive uint32 = 1
)

type registerSlotKey struct {
	serial uint32
	key    speedwire.RegisterKey
}

// MeasurementRegistry decodes the configured inverter registers into measurements and hands them to its consumers.
type MeasurementRegistry struct {
	definitions map[speedwire.RegisterKey]domain.RegisterDefinition
	names       map[string]speedwire.RegisterKey
	slots       map[registerSlotKey]*domain.MeasurementEntry
	consumers   []port.InverterConsumer
	tags        port.TagResolver
	logger      *zap.Logger
}

func NewMeasurementRegistry(tags port.TagResolver, logger *zap.Logger) *MeasurementRegistry {
	return &MeasurementRegistry{
		definitions: map[speedwire.RegisterKey]domain.RegisterDefinition{},
		names:       map[string]speedwire.RegisterKey{},
		slots:       map[registerSlotKey]*domain.MeasurementEntry{},
		tags:        tags,
		logger:      logger,
	}
}

func (r *MeasurementRegistry) AddDefinition(defs ...domain.RegisterDefinition) {
	for _, d := range defs {
		r.definitions[d.Key] = d
		r.names[d.Name] = d.Key
	}
}

func (r *MeasurementRegistry) AddConsumer(c port.InverterConsumer) {
	r.consumers = append(r.consumers, c)
}

func (r *MeasurementRegistry) Definitions() []domain.RegisterDefinition {
	defs := make([]domain.RegisterDefinition, 0, len(r.definitions))
	for _, d := range r.definitions {
		defs = append(defs, d)
	}
	return defs
}

// Consume decodes a record if its register is configured. It returns false for unknown or unusable records.
func (r *MeasurementRegistry) Consume(device domain.Device, record speedwire.RawRecord) bool {
	def, ok := r.definitions[record.Key()]
	if !ok {
		return false
	}
	if record.DataSize < MIN_RECORD_DATA_SIZE {
		r.logger.Debug("registry: record too short", zap.Stringer("key", record.Key()), zap.Int("size", record.DataSize))
		return false
	}

	key := registerSlotKey{serial: device.SerialNumber, key: def.Key}
	entry, ok := r.slots[key]
	if !ok {
		entry = domain.NewMeasurementEntry(def.Type, def.Line)
		entry.Name = def.Name
		r.slots[key] = entry
	}

	word, _ := record.Uint32(0)
	switch def.Key.Type {
	case domain.REGISTER_TYPE_STATUS:
		entry.Value.SetUint32((word>>24)&0xff, def.Type.Divisor, record.Time)
		entry.Text = r.statusText(record)
	default:
		if word == darknessUnsigned || word == darknessSigned {
			word = 0
		}
		if def.Signed {
			entry.Value.SetInt32(int32(word), def.Type.Divisor, record.Time)
		} else {
			entry.Value.SetUint32(word, def.Type.Divisor, record.Time)
		}
	}

	for _, c := range r.consumers {
		c.ConsumeInverter(device, entry)
	}
	return true
}

// statusText resolves the selected attribute of a status record.
func (r *MeasurementRegistry) statusText(record speedwire.RawRecord) string {
	for i := 0; ; i += 4 {
		w, ok := record.Uint32(i)
		if !ok || w&attributeMask >= attributeEnd {
			return ""
		}
		if w>>24 != attributeActive {
			continue
		}
		tag := w & attributeMask
		if r.tags != nil {
			if name, ok := r.tags.TagName(tag); ok {
				return name
			}
		}
		return strconv.FormatUint(uint64(tag), 10)
	}
}

// Entry returns the slot of a named measurement of a device, if it has received a value.
func (r *MeasurementRegistry) Entry(serial uint32, name string) (*domain.MeasurementEntry, bool) {
	key, ok := r.names[name]
	if !ok {
		return nil, false
	}
	e, ok := r.slots[registerSlotKey{serial: serial, key: key}]
	return e, ok
}
