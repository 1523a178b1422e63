package speedwire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	PROTOCOL_ID_EMETER    uint16 = 0x6069
	PROTOCOL_ID_INVERTER  uint16 = 0x6065
	PROTOCOL_ID_DISCOVERY uint16 = 0xffff

	MULTICAST_GROUP = "239.12.255.254"
	PORT            = 9522

	signatureOffset   = 0
	tag0Offset        = 4
	groupOffset       = 8
	lengthOffset      = 12
	netVersionOffset  = 14
	protocolIDOffset  = 16
	longWordsOffset   = 18
	controlOffset     = 19
	HEADER_SIZE       = 18
	EXT_HEADER_SIZE   = 20
	TRAILER_SIZE      = 4
	DEFAULT_GROUP     = 0x00000001
	DEFAULT_CONTROL   = 0xa0
	protocolFieldSize = 2
)

var (
	signature  = []byte{0x53, 0x4d, 0x41, 0x00} // "SMA\0"
	tag0       = []byte{0x00, 0x04, 0x02, 0xa0}
	netVersion = []byte{0x00, 0x10}
)

var (
	ErrTruncated    = errors.New("speedwire: datagram shorter than header")
	ErrBadSignature = errors.New("speedwire: bad signature")
	ErrBadLength    = errors.New("speedwire: declared length exceeds datagram")
)

// Frame is a validated view over a received datagram. It borrows the datagram buffer.
type Frame struct {
	buf           []byte
	Group         uint32
	Length        uint16
	ProtocolID    uint16
	LongWords     uint8
	Control       uint8
	PayloadOffset int
}

// DecodeFrame validates the outer envelope of buf.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < HEADER_SIZE {
		return Frame{}, ErrTruncated
	}
	if !bytes.Equal(buf[signatureOffset:signatureOffset+4], signature) ||
		!bytes.Equal(buf[tag0Offset:tag0Offset+4], tag0) {
		return Frame{}, ErrBadSignature
	}

	frame := Frame{
		buf:        buf,
		Group:      binary.BigEndian.Uint32(buf[groupOffset:]),
		Length:     binary.BigEndian.Uint16(buf[lengthOffset:]),
		ProtocolID: binary.BigEndian.Uint16(buf[protocolIDOffset:]),
	}

	if !bytes.Equal(buf[netVersionOffset:netVersionOffset+2], netVersion) {
		// discovery datagrams use a plain tag list after the group tag
		if isDiscoveryTag(buf) {
			frame.Length = 0
			frame.ProtocolID = PROTOCOL_ID_DISCOVERY
			frame.PayloadOffset = lengthOffset
			return frame, nil
		}
		return Frame{}, ErrBadSignature
	}
	if protocolIDOffset+int(frame.Length) > len(buf) {
		return Frame{}, ErrBadLength
	}

	if frame.ProtocolID == PROTOCOL_ID_EMETER {
		frame.PayloadOffset = HEADER_SIZE
		return frame, nil
	}
	if len(buf) < EXT_HEADER_SIZE || frame.Length < protocolFieldSize+2 {
		return Frame{}, ErrTruncated
	}
	frame.LongWords = buf[longWordsOffset]
	frame.Control = buf[controlOffset]
	frame.PayloadOffset = EXT_HEADER_SIZE
	return frame, nil
}

// Bytes returns the whole datagram.
func (f Frame) Bytes() []byte {
	return f.buf
}

// Payload returns the bytes between the payload offset and the end of the declared length.
// For discovery datagrams it returns the tag list following the group tag.
func (f Frame) Payload() []byte {
	if f.IsDiscovery() {
		return f.buf[f.PayloadOffset:]
	}
	end := protocolIDOffset + int(f.Length)
	if end > len(f.buf) {
		end = len(f.buf)
	}
	if f.PayloadOffset >= end {
		return nil
	}
	return f.buf[f.PayloadOffset:end]
}

func (f Frame) IsEmeter() bool {
	return f.ProtocolID == PROTOCOL_ID_EMETER
}

func (f Frame) IsInverter() bool {
	return f.ProtocolID == PROTOCOL_ID_INVERTER
}

func (f Frame) IsDiscovery() bool {
	return f.ProtocolID == PROTOCOL_ID_DISCOVERY
}

func isDiscoveryTag(buf []byte) bool {
	tagLength := binary.BigEndian.Uint16(buf[lengthOffset:])
	tag := binary.BigEndian.Uint16(buf[netVersionOffset:])
	return (tagLength == 0x0000 && tag == 0x0020) || (tagLength == 0x0002 && tag == 0x0000)
}

// EncodeHeader writes an extended envelope into buf and returns the payload offset.
// payloadSize is the number of bytes after the control byte, excluding the trailer.
func EncodeHeader(buf []byte, protocolID uint16, control uint8, payloadSize int) int {
	copy(buf[signatureOffset:], signature)
	copy(buf[tag0Offset:], tag0)
	binary.BigEndian.PutUint32(buf[groupOffset:], DEFAULT_GROUP)
	length := protocolFieldSize + 2 + payloadSize
	binary.BigEndian.PutUint16(buf[lengthOffset:], uint16(length))
	copy(buf[netVersionOffset:], netVersion)
	binary.BigEndian.PutUint16(buf[protocolIDOffset:], protocolID)
	buf[longWordsOffset] = uint8((length - protocolFieldSize) / 4)
	buf[controlOffset] = control
	return EXT_HEADER_SIZE
}
