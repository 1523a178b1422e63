package service

import (
	"testing"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const discoveryReply = "534d4100000402a0" + "00000001" + "00020000" + "0001" + "00040010" + "00010003" +
	"00040020" + "00000001" + "00040030" + "c0a8b216" + "00000000"

func TestDeviceDiscovery(t *testing.T) {
	assert := assert.New(t)

	sender := &recordingSender{}
	d := NewDeviceDiscovery(testLocal, sender, staticTags{9402: "STP 10.0"}, []string{testInverter.IPAddress},
		[]uint32{testInverter.SerialNumber, 999}, zap.Must(zap.NewDevelopment()))

	require.NoError(t, d.Start())
	require.Len(t, sender.sent, 2)
	assert.True(sender.sent[0].broadcast)
	assert.True(speedwire.IsDiscoveryRequest(sender.sent[0].datagram))
	assert.Equal(testInverter.IPAddress, sender.sent[1].ip)
	assert.Equal(speedwire.DISCOVERY_QUERY, sender.packet(t, 1).CommandID())
	assert.Equal(speedwire.BROADCAST_SERIAL, sender.packet(t, 1).DstSerialNumber())

	// our own multicast request is echoed back
	assert.False(d.OnDatagram(speedwire.DiscoveryRequest(), addr("192.168.1.10")))

	assert.True(d.OnDatagram(mustHex(t, discoveryReply), addr("192.168.178.22")))
	require.Len(t, sender.sent, 3)
	assert.Equal("192.168.178.22", sender.sent[2].ip)
	assert.False(d.OnDatagram(mustHex(t, discoveryReply), addr("192.168.178.22")), "known address is not queried twice")
	assert.Empty(d.Devices(), "devices without serial number are not listed")
	assert.Equal([]string{testInverter.IPAddress}, d.WakeCandidates())

	assert.True(d.OnDatagram(inverterReply(testInverter, 2, speedwire.DISCOVERY_QUERY, 0, 0), addr(testInverter.IPAddress)))
	require.Len(t, sender.sent, 4)
	query := sender.packet(t, 3)
	assert.Equal(speedwire.DEVICE_QUERY, query.CommandID())
	assert.Equal(testInverter.SerialNumber, query.DstSerialNumber())
	assert.Equal(uint32(domain.REGISTER_DEVICE_NAME), query.FirstRegisterID())

	deviceReply := inverterReply(testInverter, 4, speedwire.DEVICE_QUERY, 0, 0,
		testRecord{registerID: domain.REGISTER_DEVICE_NAME, connector: 1, typ: domain.REGISTER_TYPE_TEXT, time: 100, words: []uint32{0x31766e49}},
		testRecord{registerID: domain.REGISTER_DEVICE_CLASS, connector: 1, typ: domain.REGISTER_TYPE_STATUS, time: 100, words: []uint32{0x00000050, 0x01000000 | domain.CLASS_TAG_SOLAR_INVERTER, 0x00fffffe}},
		testRecord{registerID: domain.REGISTER_DEVICE_TYPE, connector: 1, typ: domain.REGISTER_TYPE_STATUS, time: 100, words: []uint32{0x01000000 | 9402, 0x00fffffe}},
	)
	assert.True(d.OnDatagram(deviceReply, addr(testInverter.IPAddress)))

	assert.True(d.OnDatagram(meterDatagram(testMeter.SerialNumber, 0, 0), addr(testMeter.IPAddress)))

	devices := d.Devices()
	require.Len(t, devices, 2)
	assert.Equal(testMeter.SerialNumber, devices[0].SerialNumber)
	assert.Equal(domain.DEVICE_CLASS_EMETER, devices[0].DeviceClass)

	inv := devices[1]
	assert.Equal(testInverter.SusyID, inv.SusyID)
	assert.Equal(testInverter.SerialNumber, inv.SerialNumber)
	assert.Equal(domain.DEVICE_CLASS_PV_INVERTER, inv.DeviceClass)
	assert.Equal("STP 10.0", inv.DeviceModel)
	assert.Equal("Inv1", inv.DeviceName)
	assert.Equal(testInverter.IPAddress, inv.IPAddress)
	assert.True(inv.IsComplete())

	found, ok := d.FindBySerial(testInverter.SerialNumber)
	assert.True(ok)
	assert.Equal(inv, found)
	assert.Equal([]uint32{999}, d.Missing())
	assert.Empty(d.WakeCandidates())

	assert.False(d.OnDatagram(meterDatagram(testMeter.SerialNumber, 0, 0), addr(testMeter.IPAddress)), "unchanged device")
}

func TestDeviceDiscoveryIgnoresRepliesToOtherHosts(t *testing.T) {
	sender := &recordingSender{}
	local := testLocal
	local.SerialNumber++
	d := NewDeviceDiscovery(local, sender, nil, nil, nil, zap.Must(zap.NewDevelopment()))

	assert.False(t, d.OnDatagram(inverterReply(testInverter, 2, speedwire.DISCOVERY_QUERY, 0, 0), addr(testInverter.IPAddress)))
	assert.Empty(t, sender.sent)
	assert.Empty(t, d.Devices())
}

func TestDeviceListFindBySerial(t *testing.T) {
	l := DeviceList{testMeter, testInverter}

	d, ok := l.FindBySerial(testInverter.SerialNumber)
	assert.True(t, ok)
	assert.Equal(t, testInverter, d)
	_, ok = l.FindBySerial(1)
	assert.False(t, ok)
	assert.Len(t, l.Devices(), 2)
}
