package speedwire

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDevice = Address{SusyID: 0x017a, SerialNumber: 3010538116}
	testLocal  = Address{SusyID: 0x007d, SerialNumber: 0x3a28be42}
)

func TestEncodeQueryRequestMatchesCapture(t *testing.T) {
	buf := EncodeQueryRequest(testDevice, testLocal, 9, STATUS_QUERY, 0x00214800, 0x002148ff)
	assert.Equal(t, statusQueryHex, hex.EncodeToString(buf))
}

func TestEncodeLoginRequest(t *testing.T) {
	assert := assert.New(t)

	buf, err := EncodeLoginRequest(testLocal, 1, USER_GROUP_USER, "0000", 1609156953)
	require.NoError(t, err)

	frame, err := DecodeFrame(buf)
	require.NoError(t, err)
	assert.Equal(uint8(0x0e), frame.LongWords)

	packet, err := NewInverterPacket(frame)
	require.NoError(t, err)
	assert.Equal(BROADCAST_SUSY_ID, packet.DstSusyID())
	assert.Equal(BROADCAST_SERIAL, packet.DstSerialNumber())
	assert.Equal(CONTROL_QUERY, packet.DstControl())
	assert.Equal(LOGIN, packet.CommandID())
	assert.Equal(uint32(USER_GROUP_USER), packet.FirstRegisterID())
	assert.Equal(uint32(LOGIN_TIMEOUT_SECONDS), packet.LastRegisterID())

	payload := frame.Payload()
	assert.Equal(uint32(1609156953), binary.LittleEndian.Uint32(payload[INVERTER_HEADER_SIZE:]))
	assert.Equal(uint32(0), binary.LittleEndian.Uint32(payload[INVERTER_HEADER_SIZE+4:]))
	assert.Equal("b8b8b8b88888888888888888", hex.EncodeToString(payload[INVERTER_HEADER_SIZE+8:]))
}

func TestEncodePassword(t *testing.T) {
	assert := assert.New(t)

	encoded, err := EncodePassword(USER_GROUP_INSTALLER, "1111")
	require.NoError(t, err)
	assert.Equal([]byte{0xec, 0xec, 0xec, 0xec, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}, encoded)

	_, err = EncodePassword(USER_GROUP_USER, "0123456789abc")
	assert.ErrorIs(err, ErrPasswordTooLong)
}

func TestEncodeLogoffRequest(t *testing.T) {
	assert := assert.New(t)

	frame, err := DecodeFrame(EncodeLogoffRequest(testLocal, 2))
	require.NoError(t, err)
	assert.Equal(uint16(0x22), frame.Length)
	assert.Equal(uint8(0x08), frame.LongWords)

	// logoff carries no register range, so it is shorter than a full inverter header
	_, err = NewInverterPacket(frame)
	assert.ErrorIs(err, ErrInverterTruncated)

	payload := frame.Payload()
	require.Len(t, payload, 30)
	assert.Equal(BROADCAST_SUSY_ID, binary.LittleEndian.Uint16(payload[invDstSusyIDOffset:]))
	assert.Equal(BROADCAST_SERIAL, binary.LittleEndian.Uint32(payload[invDstSerialOffset:]))
	assert.Equal(CONTROL_LOGOFF, binary.LittleEndian.Uint16(payload[invDstControlOffset:]))
	assert.Equal(testLocal.SusyID, binary.LittleEndian.Uint16(payload[invSrcSusyIDOffset:]))
	assert.Equal(testLocal.SerialNumber, binary.LittleEndian.Uint32(payload[invSrcSerialOffset:]))
	assert.Equal(uint16(2)|PACKET_ID_FLAG, binary.LittleEndian.Uint16(payload[invPacketIDOffset:]))
	assert.Equal(LOGOFF, Command(binary.LittleEndian.Uint32(payload[invCommandOffset:])))
	assert.Equal(uint32(0xffffffff), binary.LittleEndian.Uint32(payload[invFirstRegOffset:]))
}

func TestParseUserGroup(t *testing.T) {
	assert := assert.New(t)

	g, err := ParseUserGroup("Installer")
	assert.NoError(err)
	assert.Equal(USER_GROUP_INSTALLER, g)
	assert.Equal("installer", g.String())

	g, err = ParseUserGroup("")
	assert.NoError(err)
	assert.Equal(USER_GROUP_USER, g)

	_, err = ParseUserGroup("admin")
	assert.Error(err)
}

func TestCommandString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("AC_QUERY", AC_QUERY.String())
	assert.Equal("STATUS_QUERY|0x00020000", (STATUS_QUERY | COMPONENT_2).String())
	assert.Equal("0x51800201", Command(0x51800201).String())
}
