package speedwire

import (
	"encoding/binary"
	"fmt"
)

type Command uint32

const (
	AC_QUERY          Command = 0x51000200
	STATUS_QUERY      Command = 0x51800200
	TEMPERATURE_QUERY Command = 0x52000200
	DC_QUERY          Command = 0x53800200
	ENERGY_QUERY      Command = 0x54000200
	DEVICE_QUERY      Command = 0x58000200
	DISCOVERY_QUERY   Command = 0x00000200
	LOGIN             Command = 0xfffd040c
	LOGOFF            Command = 0xfffd010e

	COMPONENT_1 Command = 0x00010000
	COMPONENT_2 Command = 0x00020000
)

var commandNames = map[Command]string{
	AC_QUERY:          "AC_QUERY",
	STATUS_QUERY:      "STATUS_QUERY",
	TEMPERATURE_QUERY: "TEMPERATURE_QUERY",
	DC_QUERY:          "DC_QUERY",
	ENERGY_QUERY:      "ENERGY_QUERY",
	DEVICE_QUERY:      "DEVICE_QUERY",
	DISCOVERY_QUERY:   "DISCOVERY_QUERY",
	LOGIN:             "LOGIN",
	LOGOFF:            "LOGOFF",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	if name, ok := commandNames[c&^(COMPONENT_1|COMPONENT_2)]; ok {
		return fmt.Sprintf("%s|0x%08x", name, uint32(c&(COMPONENT_1|COMPONENT_2)))
	}
	return fmt.Sprintf("0x%08x", uint32(c))
}

const (
	CONTROL_QUERY  uint16 = 0x0100
	CONTROL_LOGOFF uint16 = 0x0300

	BROADCAST_SUSY_ID uint16 = 0xffff
	BROADCAST_SERIAL  uint32 = 0xffffffff

	ERROR_LOST_CONNECTION uint16 = 0x0017
	ERROR_BAD_PASSWORD    uint16 = 0x0100
)

// Address identifies a speedwire endpoint by susy id and serial number.
type Address struct {
	SusyID       uint16
	SerialNumber uint32
}

func (a Address) String() string {
	return fmt.Sprintf("%d:%d", a.SusyID, a.SerialNumber)
}

var BroadcastAddress = Address{SusyID: BROADCAST_SUSY_ID, SerialNumber: BROADCAST_SERIAL}

// CommandRequest describes an outbound inverter command datagram.
type CommandRequest struct {
	Destination Address
	Source      Address
	Control     uint16
	PacketID    uint16
	Command     Command
	Data        []uint32
	Raw         []byte
}

// Encode serialises the request into a complete datagram including the end-of-data trailer.
func (r CommandRequest) Encode() []byte {
	payloadSize := INVERTER_HEADER_SIZE - 8 + 4*len(r.Data) + len(r.Raw)
	buf := make([]byte, EXT_HEADER_SIZE+payloadSize+TRAILER_SIZE)
	offset := EncodeHeader(buf, PROTOCOL_ID_INVERTER, DEFAULT_CONTROL, payloadSize)
	p := buf[offset:]
	binary.LittleEndian.PutUint16(p[invDstSusyIDOffset:], r.Destination.SusyID)
	binary.LittleEndian.PutUint32(p[invDstSerialOffset:], r.Destination.SerialNumber)
	binary.LittleEndian.PutUint16(p[invDstControlOffset:], r.Control)
	binary.LittleEndian.PutUint16(p[invSrcSusyIDOffset:], r.Source.SusyID)
	binary.LittleEndian.PutUint32(p[invSrcSerialOffset:], r.Source.SerialNumber)
	binary.LittleEndian.PutUint16(p[invSrcControlOffset:], r.Control)
	binary.LittleEndian.PutUint16(p[invErrorCodeOffset:], 0)
	binary.LittleEndian.PutUint16(p[invFragmentOffset:], 0)
	binary.LittleEndian.PutUint16(p[invPacketIDOffset:], r.PacketID|PACKET_ID_FLAG)
	binary.LittleEndian.PutUint32(p[invCommandOffset:], uint32(r.Command))
	i := invCommandOffset + 4
	for _, word := range r.Data {
		binary.LittleEndian.PutUint32(p[i:], word)
		i += 4
	}
	copy(p[i:], r.Raw)
	return buf
}

// EncodeQueryRequest builds a register range query.
func EncodeQueryRequest(dst, src Address, packetID uint16, cmd Command, first, last uint32) []byte {
	return CommandRequest{
		Destination: dst,
		Source:      src,
		Control:     CONTROL_QUERY,
		PacketID:    packetID,
		Command:     cmd,
		Data:        []uint32{first, last},
	}.Encode()
}

// EncodeDiscoveryQuery builds the unicast query used to learn a device's susy id and serial number.
func EncodeDiscoveryQuery(src Address, packetID uint16) []byte {
	return EncodeQueryRequest(BroadcastAddress, src, packetID, DISCOVERY_QUERY, 0, 0)
}
