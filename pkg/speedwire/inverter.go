package speedwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Inverter payload fields are little-endian, unlike the envelope.
const (
	invDstSusyIDOffset  = 0
	invDstSerialOffset  = 2
	invDstControlOffset = 6
	invSrcSusyIDOffset  = 8
	invSrcSerialOffset  = 10
	invSrcControlOffset = 14
	invErrorCodeOffset  = 16
	invFragmentOffset   = 18
	invPacketIDOffset   = 20
	invCommandOffset    = 22
	invFirstRegOffset   = 26
	invLastRegOffset    = 30

	INVERTER_HEADER_SIZE = 34

	RECORD_HEADER_SIZE   = 8
	RECORD_MAX_DATA_SIZE = 32

	// protocol id, long words and control bytes counted by the envelope length
	lengthPrefixSize = 4

	PACKET_ID_FLAG = 0x8000
)

var (
	ErrInverterTruncated = errors.New("speedwire: inverter payload shorter than header")
	ErrPayloadTooShort   = errors.New("speedwire: inverter payload too short for record count")
)

// InverterPacket is a view over the payload of an inverter command or reply datagram.
type InverterPacket struct {
	payload []byte
	length  uint16
}

func NewInverterPacket(frame Frame) (InverterPacket, error) {
	payload := frame.Payload()
	if len(payload) < INVERTER_HEADER_SIZE {
		return InverterPacket{}, ErrInverterTruncated
	}
	return InverterPacket{payload: payload, length: frame.Length}, nil
}

func (p InverterPacket) DstSusyID() uint16 {
	return binary.LittleEndian.Uint16(p.payload[invDstSusyIDOffset:])
}

func (p InverterPacket) DstSerialNumber() uint32 {
	return binary.LittleEndian.Uint32(p.payload[invDstSerialOffset:])
}

func (p InverterPacket) DstControl() uint16 {
	return binary.LittleEndian.Uint16(p.payload[invDstControlOffset:])
}

func (p InverterPacket) SrcSusyID() uint16 {
	return binary.LittleEndian.Uint16(p.payload[invSrcSusyIDOffset:])
}

func (p InverterPacket) SrcSerialNumber() uint32 {
	return binary.LittleEndian.Uint32(p.payload[invSrcSerialOffset:])
}

func (p InverterPacket) SrcControl() uint16 {
	return binary.LittleEndian.Uint16(p.payload[invSrcControlOffset:])
}

func (p InverterPacket) ErrorCode() uint16 {
	return binary.LittleEndian.Uint16(p.payload[invErrorCodeOffset:])
}

// FragmentID counts the fragments still to come; zero marks the last one.
func (p InverterPacket) FragmentID() uint16 {
	return binary.LittleEndian.Uint16(p.payload[invFragmentOffset:])
}

// PacketID returns the packet id without the request flag bit.
func (p InverterPacket) PacketID() uint16 {
	return binary.LittleEndian.Uint16(p.payload[invPacketIDOffset:]) &^ PACKET_ID_FLAG
}

func (p InverterPacket) CommandID() Command {
	return Command(binary.LittleEndian.Uint32(p.payload[invCommandOffset:]))
}

func (p InverterPacket) FirstRegisterID() uint32 {
	return binary.LittleEndian.Uint32(p.payload[invFirstRegOffset:])
}

func (p InverterPacket) LastRegisterID() uint32 {
	return binary.LittleEndian.Uint32(p.payload[invLastRegOffset:])
}

// HasRecords reports whether the reply carries register data. Login replies do not.
func (p InverterPacket) HasRecords() bool {
	return int(p.length) > lengthPrefixSize+INVERTER_HEADER_SIZE+RECORD_HEADER_SIZE
}

// RawRecords splits the data region evenly into last-first+1 records.
// tokenCommand is stamped on each record since replies alter the low byte of the command.
// On ErrPayloadTooShort the records decoded before the failing one are returned.
func (p InverterPacket) RawRecords(tokenCommand Command) ([]RawRecord, error) {
	if !p.HasRecords() {
		return nil, nil
	}
	first := uint64(p.FirstRegisterID())
	last := uint64(p.LastRegisterID())
	if last < first {
		return nil, fmt.Errorf("%w: last register %d before first %d", ErrPayloadTooShort, last, first)
	}
	count := last - first + 1
	payloadLength := uint64(p.length) - lengthPrefixSize - INVERTER_HEADER_SIZE
	data := p.payload[INVERTER_HEADER_SIZE:]
	if uint64(len(data)) < payloadLength {
		payloadLength = uint64(len(data))
	}
	recordLength := payloadLength / count
	if recordLength < RECORD_HEADER_SIZE {
		return nil, fmt.Errorf("%w: %d bytes for %d records", ErrPayloadTooShort, payloadLength, count)
	}

	records := make([]RawRecord, 0, count)
	var offset uint64
	for i := uint64(0); i < count; i++ {
		if offset+recordLength > payloadLength {
			return records, ErrPayloadTooShort
		}
		word := binary.LittleEndian.Uint32(data[offset:])
		record := RawRecord{
			Command:    tokenCommand,
			RegisterID: word & 0x00ffff00,
			Connector:  uint8(word & 0xff),
			Type:       uint8(word >> 24),
			Time:       binary.LittleEndian.Uint32(data[offset+4:]),
			DataSize:   int(min(recordLength-RECORD_HEADER_SIZE, RECORD_MAX_DATA_SIZE)),
		}
		copy(record.Data[:record.DataSize], data[offset+RECORD_HEADER_SIZE:])
		records = append(records, record)
		offset += recordLength
	}
	return records, nil
}

// RegisterKey identifies a register value by query command, register id, connector and type.
type RegisterKey struct {
	Command    Command
	RegisterID uint32
	Connector  uint8
	Type       uint8
}

func (k RegisterKey) String() string {
	return fmt.Sprintf("%s/0x%08x/0x%02x/0x%02x", k.Command, k.RegisterID, k.Connector, k.Type)
}

// RawRecord is a single register value taken from an inverter reply.
type RawRecord struct {
	Command    Command
	RegisterID uint32
	Connector  uint8
	Type       uint8
	Time       uint32
	Data       [RECORD_MAX_DATA_SIZE]byte
	DataSize   int
}

func (r RawRecord) Key() RegisterKey {
	return RegisterKey{
		Command:    r.Command,
		RegisterID: r.RegisterID,
		Connector:  r.Connector,
		Type:       r.Type,
	}
}

// Uint32 reads the little-endian word at byte offset i of the record data.
func (r RawRecord) Uint32(i int) (uint32, bool) {
	if i < 0 || i+4 > r.DataSize {
		return 0, false
	}
	return binary.LittleEndian.Uint32(r.Data[i:]), true
}

// Uint64 reads the little-endian double word at byte offset i of the record data.
func (r RawRecord) Uint64(i int) (uint64, bool) {
	if i < 0 || i+8 > r.DataSize {
		return 0, false
	}
	return binary.LittleEndian.Uint64(r.Data[i:]), true
}
