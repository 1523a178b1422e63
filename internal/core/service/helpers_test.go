package service

import (
	"encoding/binary"
	"encoding/hex"
	"net/netip"
	"testing"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"github.com/stretchr/testify/require"
)

var (
	testLocal    = speedwire.Address{SusyID: 0x007d, SerialNumber: 0x3a28be42}
	testInverter = domain.Device{
		SusyID:       0x017a,
		SerialNumber: 3010538116,
		DeviceClass:  domain.DEVICE_CLASS_PV_INVERTER,
		DeviceModel:  "STP 10.0",
		IPAddress:    "192.168.1.50",
	}
	testBattery = domain.Device{
		SusyID:       0x0174,
		SerialNumber: 3012000001,
		DeviceClass:  domain.DEVICE_CLASS_BATTERY_INVERTER,
		IPAddress:    "192.168.1.51",
	}
	testMeter = domain.Device{
		SusyID:       349,
		SerialNumber: 1901431377,
		DeviceClass:  domain.DEVICE_CLASS_EMETER,
		IPAddress:    "192.168.1.60",
	}
)

// captured STATUS_QUERY reply for register 0x00214800 with packet id 9
const capturedStatusReply = "534d4100000402a000000001004e0010" + "606513a0" + "7d0042be283a00a1" + "7a01842a71b30001" +
	"000000000980" + "01028051" + "00000000" + "00000000" + "01482108" + "59c5e95f" + "33010001" + "feffff00" +
	"00000000" + "00000000" + "00000000" + "00000000" + "00000000" + "00000000" + "00000000"

type sentDatagram struct {
	ip        string
	datagram  []byte
	broadcast bool
}

type recordingSender struct {
	sent []sentDatagram
	err  error
}

func (s *recordingSender) SendTo(ip string, datagram []byte) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentDatagram{ip: ip, datagram: datagram})
	return nil
}

func (s *recordingSender) Broadcast(datagram []byte) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentDatagram{datagram: datagram, broadcast: true})
	return nil
}

func (s *recordingSender) packet(t *testing.T, i int) speedwire.InverterPacket {
	require.Greater(t, len(s.sent), i)
	frame, err := speedwire.DecodeFrame(s.sent[i].datagram)
	require.NoError(t, err)
	packet, err := speedwire.NewInverterPacket(frame)
	require.NoError(t, err)
	return packet
}

type blockEnd struct {
	device domain.Device
	timer  uint32
}

type recordingSink struct {
	samples []domain.MeasurementSample
	blocks  []blockEnd
}

func (s *recordingSink) Consume(sample domain.MeasurementSample) {
	s.samples = append(s.samples, sample)
}

func (s *recordingSink) EndOfBlock(device domain.Device, timer uint32) {
	s.blocks = append(s.blocks, blockEnd{device: device, timer: timer})
}

type recordingConsumer struct {
	obis     []domain.MeasurementEntry
	inverter []domain.MeasurementEntry
}

func (c *recordingConsumer) ConsumeObis(device domain.Device, entry *domain.MeasurementEntry) {
	e := *entry
	v := *entry.Value
	e.Value = &v
	c.obis = append(c.obis, e)
}

func (c *recordingConsumer) ConsumeInverter(device domain.Device, entry *domain.MeasurementEntry) {
	e := *entry
	v := *entry.Value
	e.Value = &v
	c.inverter = append(c.inverter, e)
}

type staticTags map[uint32]string

func (t staticTags) TagName(tag uint32) (string, bool) {
	name, ok := t[tag]
	return name, ok
}

func mustHex(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func mustFrame(t *testing.T, buf []byte) speedwire.Frame {
	frame, err := speedwire.DecodeFrame(buf)
	require.NoError(t, err)
	return frame
}

func addr(ip string) netip.Addr {
	return netip.MustParseAddr(ip)
}

// testRecord is one register value of a synthetic inverter reply.
type testRecord struct {
	registerID uint32
	connector  uint8
	typ        uint8
	time       uint32
	words      []uint32
}

// recordWords is the number of data words per synthetic record, giving 28 byte records.
const recordWords = 5

// inverterReply builds a reply datagram from device to the local address.
func inverterReply(device domain.Device, packetID uint16, cmd speedwire.Command, errorCode, fragment uint16, records ...testRecord) []byte {
	data := []uint32{0, 0}
	if len(records) > 0 {
		data = data[:0]
		first := records[0].registerID
		last := first + uint32(len(records)) - 1
		data = append(data, first, last)
		for _, r := range records {
			data = append(data, uint32(r.typ)<<24|r.registerID|uint32(r.connector), r.time)
			words := make([]uint32, recordWords)
			copy(words, r.words)
			data = append(data, words...)
		}
	}
	buf := speedwire.CommandRequest{
		Destination: testLocal,
		Source:      device.Address(),
		PacketID:    packetID,
		Command:     cmd | 1,
		Data:        data,
	}.Encode()
	payload := buf[speedwire.EXT_HEADER_SIZE:]
	binary.LittleEndian.PutUint16(payload[16:], errorCode)
	binary.LittleEndian.PutUint16(payload[18:], fragment)
	return buf
}
