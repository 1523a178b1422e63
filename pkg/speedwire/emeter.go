package speedwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	emeterSusyIDOffset = 0
	emeterSerialOffset = 2
	emeterTimeOffset   = 6
	EMETER_HEADER_SIZE = 10

	OBIS_HEADER_SIZE          = 4
	OBIS_CHANNEL_FW_VERSION   = 144
	OBIS_FW_VERSION_LENGTH    = 8
	OBIS_TYPE_ACTUAL          = 4
	OBIS_TYPE_COUNTER         = 8
	OBIS_TYPE_SIGNED_CALC     = 7
	OBIS_TYPE_FIRMWARE_STRING = 0
)

var ErrEmeterTruncated = errors.New("speedwire: emeter payload shorter than header")

// EmeterPacket is a view over the payload of an energy meter datagram.
type EmeterPacket struct {
	payload []byte
}

func NewEmeterPacket(frame Frame) (EmeterPacket, error) {
	payload := frame.Payload()
	if len(payload) < EMETER_HEADER_SIZE {
		return EmeterPacket{}, ErrEmeterTruncated
	}
	return EmeterPacket{payload: payload}, nil
}

func (p EmeterPacket) SusyID() uint16 {
	return binary.BigEndian.Uint16(p.payload[emeterSusyIDOffset:])
}

func (p EmeterPacket) SerialNumber() uint32 {
	return binary.BigEndian.Uint32(p.payload[emeterSerialOffset:])
}

// Time returns the device ticker in milliseconds.
func (p EmeterPacket) Time() uint32 {
	return binary.BigEndian.Uint32(p.payload[emeterTimeOffset:])
}

// Elements returns a single-use iterator over the obis elements of the packet.
func (p EmeterPacket) Elements() *ObisIterator {
	return &ObisIterator{payload: p.payload, offset: EMETER_HEADER_SIZE, first: true}
}

// ObisIterator walks obis elements. A truncated trailing element ends the walk.
type ObisIterator struct {
	payload []byte
	offset  int
	first   bool
	done    bool
}

// Next returns the next complete element, or false once no further element fits the payload.
func (it *ObisIterator) Next() (ObisElement, bool) {
	if it.done {
		return ObisElement{}, false
	}
	if !it.first {
		current := ObisElement{raw: it.payload[it.offset:]}
		it.offset += current.Length()
	}
	it.first = false

	size := len(it.payload)
	if it.offset+OBIS_HEADER_SIZE > size {
		it.done = true
		return ObisElement{}, false
	}
	next := ObisElement{raw: it.payload[it.offset:]}
	if it.offset+next.Length() > size {
		it.done = true
		return ObisElement{}, false
	}
	return ObisElement{raw: it.payload[it.offset : it.offset+next.Length()]}, true
}

// ObisSignature identifies an obis element by channel, index, type and tariff.
type ObisSignature struct {
	Channel uint8
	Index   uint8
	Type    uint8
	Tariff  uint8
}

func (s ObisSignature) String() string {
	return fmt.Sprintf("%d:%d.%d.%d", s.Channel, s.Index, s.Type, s.Tariff)
}

// ObisElement is a view over a single obis element.
type ObisElement struct {
	raw []byte
}

func (e ObisElement) Channel() uint8 {
	return e.raw[0]
}

func (e ObisElement) Index() uint8 {
	return e.raw[1]
}

func (e ObisElement) Type() uint8 {
	return e.raw[2]
}

func (e ObisElement) Tariff() uint8 {
	return e.raw[3]
}

func (e ObisElement) Signature() ObisSignature {
	return ObisSignature{
		Channel: e.Channel(),
		Index:   e.Index(),
		Type:    e.Type(),
		Tariff:  e.Tariff(),
	}
}

// Length is the size of the element including its 4-byte header.
func (e ObisElement) Length() int {
	if e.Channel() == OBIS_CHANNEL_FW_VERSION {
		return OBIS_FW_VERSION_LENGTH
	}
	return OBIS_HEADER_SIZE + int(e.Type())
}

// Uint32 returns the 4-byte value. ok is false if the element has no 4-byte value.
func (e ObisElement) Uint32() (uint32, bool) {
	if len(e.raw) < OBIS_HEADER_SIZE+4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(e.raw[OBIS_HEADER_SIZE:]), true
}

// Uint64 returns the 8-byte value. ok is false if the element has no 8-byte value.
func (e ObisElement) Uint64() (uint64, bool) {
	if len(e.raw) < OBIS_HEADER_SIZE+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(e.raw[OBIS_HEADER_SIZE:]), true
}

// FirmwareVersion formats the firmware version element as a.b.c.d.
func (e ObisElement) FirmwareVersion() (string, bool) {
	if e.Channel() != OBIS_CHANNEL_FW_VERSION {
		return "", false
	}
	v, ok := e.Uint32()
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%d.%d.%d.%d", v>>24, (v>>16)&0xff, (v>>8)&0xff, v&0xff), true
}

func (e ObisElement) Bytes() []byte {
	return e.raw
}

// NewObisElement wraps raw element bytes. It returns false if raw does not hold a complete element.
func NewObisElement(raw []byte) (ObisElement, bool) {
	if len(raw) < OBIS_HEADER_SIZE {
		return ObisElement{}, false
	}
	e := ObisElement{raw: raw}
	if len(raw) < e.Length() {
		return ObisElement{}, false
	}
	return ObisElement{raw: raw[:e.Length()]}, true
}

// EncodeObisElement builds an element with a 4-byte value for type 4 and 7 or an 8-byte value for type 8.
func EncodeObisElement(sig ObisSignature, value uint64) []byte {
	valueSize := 0
	switch {
	case sig.Type == OBIS_TYPE_COUNTER:
		valueSize = 8
	case sig.Type == OBIS_TYPE_ACTUAL, sig.Type == OBIS_TYPE_SIGNED_CALC, sig.Channel == OBIS_CHANNEL_FW_VERSION:
		valueSize = 4
	}
	size := OBIS_HEADER_SIZE + int(sig.Type)
	if sig.Channel == OBIS_CHANNEL_FW_VERSION {
		size = OBIS_FW_VERSION_LENGTH
	}
	if size < OBIS_HEADER_SIZE+valueSize {
		size = OBIS_HEADER_SIZE + valueSize
	}
	buf := make([]byte, size)
	buf[0] = sig.Channel
	buf[1] = sig.Index
	buf[2] = sig.Type
	buf[3] = sig.Tariff
	switch valueSize {
	case 4:
		binary.BigEndian.PutUint32(buf[OBIS_HEADER_SIZE:], uint32(value))
	case 8:
		binary.BigEndian.PutUint64(buf[OBIS_HEADER_SIZE:], value)
	}
	return buf
}

// EmeterPacketBuilder assembles an energy meter datagram.
type EmeterPacketBuilder struct {
	SusyID       uint16
	SerialNumber uint32
	Time         uint32
	elements     [][]byte
}

func (b *EmeterPacketBuilder) Add(sig ObisSignature, value uint64) *EmeterPacketBuilder {
	b.elements = append(b.elements, EncodeObisElement(sig, value))
	return b
}

func (b *EmeterPacketBuilder) Bytes() []byte {
	payloadSize := EMETER_HEADER_SIZE
	for _, e := range b.elements {
		payloadSize += len(e)
	}
	buf := make([]byte, HEADER_SIZE+payloadSize+TRAILER_SIZE)
	copy(buf[signatureOffset:], signature)
	copy(buf[tag0Offset:], tag0)
	binary.BigEndian.PutUint32(buf[groupOffset:], DEFAULT_GROUP)
	binary.BigEndian.PutUint16(buf[lengthOffset:], uint16(protocolFieldSize+payloadSize))
	copy(buf[netVersionOffset:], netVersion)
	binary.BigEndian.PutUint16(buf[protocolIDOffset:], PROTOCOL_ID_EMETER)

	offset := HEADER_SIZE
	binary.BigEndian.PutUint16(buf[offset+emeterSusyIDOffset:], b.SusyID)
	binary.BigEndian.PutUint32(buf[offset+emeterSerialOffset:], b.SerialNumber)
	binary.BigEndian.PutUint32(buf[offset+emeterTimeOffset:], b.Time)
	offset += EMETER_HEADER_SIZE
	for _, e := range b.elements {
		copy(buf[offset:], e)
		offset += len(e)
	}
	return buf
}
