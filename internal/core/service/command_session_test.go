package service

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLoggedInSession(t *testing.T) (*CommandSession, *recordingSender) {
	sender := &recordingSender{}
	session := NewCommandSession(testLocal, sender, zap.Must(zap.NewDevelopment()))

	require.NoError(t, session.Login([]domain.Device{testInverter, testMeter, testBattery}, speedwire.USER_GROUP_USER, "0000", 1700000000))
	require.Len(t, sender.sent, 2, "login is sent to inverters only")
	assert.Equal(t, AWAITING_LOGIN, session.State())

	outcome, _, _ := session.OnReply(mustFrame(t, inverterReply(testInverter, 1, speedwire.LOGIN, 0, 0)), addr(testInverter.IPAddress))
	require.Equal(t, REPLY_ACCEPTED, outcome)
	outcome, _, _ = session.OnReply(mustFrame(t, inverterReply(testBattery, 2, speedwire.LOGIN, 0, 0)), addr(testBattery.IPAddress))
	require.Equal(t, REPLY_ACCEPTED, outcome)
	require.Equal(t, 0, session.Size())

	sender.sent = nil
	return session, sender
}

func TestCommandSessionRequiresLogin(t *testing.T) {
	sender := &recordingSender{}
	session := NewCommandSession(testLocal, sender, zap.Must(zap.NewDevelopment()))

	assert.True(t, session.NeedsLogin())
	_, err := session.SendQuery(testInverter, speedwire.AC_QUERY, 0x00464000, 0x004642ff)
	assert.ErrorIs(t, err, ErrNeedsLogin)
	assert.Empty(t, sender.sent)
}

func TestCommandSessionLogin(t *testing.T) {
	assert := assert.New(t)

	session, _ := newLoggedInSession(t)
	assert.False(session.NeedsLogin())
	assert.Equal(LOGGED_IN, session.State())
	assert.Equal("logged_in", session.State().String())
}

func TestCommandSessionQueryEncoding(t *testing.T) {
	assert := assert.New(t)

	session, sender := newLoggedInSession(t)
	token, err := session.SendQuery(testInverter, speedwire.DC_QUERY, 0x00251e00, 0x00251eff)
	require.NoError(t, err)
	assert.Equal(uint16(3), token.PacketID)
	assert.Equal(testInverter.IPAddress, token.Address)
	assert.Equal(1, session.Size())

	require.Len(t, sender.sent, 1)
	assert.Equal(testInverter.IPAddress, sender.sent[0].ip)
	packet := sender.packet(t, 0)
	assert.Equal(testInverter.SusyID, packet.DstSusyID())
	assert.Equal(testInverter.SerialNumber, packet.DstSerialNumber())
	assert.Equal(testLocal.SusyID, packet.SrcSusyID())
	assert.Equal(testLocal.SerialNumber, packet.SrcSerialNumber())
	assert.Equal(uint16(3), packet.PacketID())
	assert.Equal(speedwire.DC_QUERY, packet.CommandID())
	assert.Equal(uint32(0x00251e00), packet.FirstRegisterID())
	assert.Equal(uint32(0x00251eff), packet.LastRegisterID())
}

func TestCommandSessionInterleavedReplies(t *testing.T) {
	assert := assert.New(t)

	session, _ := newLoggedInSession(t)
	dc, err := session.SendQuery(testInverter, speedwire.DC_QUERY, 0x00251e00, 0x00251eff)
	require.NoError(t, err)
	ac, err := session.SendQuery(testInverter, speedwire.AC_QUERY, 0x00464000, 0x004642ff)
	require.NoError(t, err)
	status, err := session.SendQuery(testBattery, speedwire.STATUS_QUERY|speedwire.COMPONENT_2, 0x00412a00, 0x00498aff)
	require.NoError(t, err)
	assert.Equal(3, session.Size())

	rec := testRecord{registerID: 0x00464000, connector: 1, typ: domain.REGISTER_TYPE_SIGNED, time: 100, words: []uint32{1500}}

	outcome, token, records := session.OnReply(mustFrame(t, inverterReply(testBattery, status.PacketID, status.Command, 0, 0, rec)), addr(testBattery.IPAddress))
	assert.Equal(REPLY_ACCEPTED, outcome)
	require.NotNil(t, token)
	assert.Equal(testBattery.SerialNumber, token.SerialNumber)
	require.Len(t, records, 1)
	assert.Equal(status.Command, records[0].Command, "records carry the token command")

	outcome, token, _ = session.OnReply(mustFrame(t, inverterReply(testInverter, dc.PacketID, speedwire.DC_QUERY, 0, 0, rec)), addr(testInverter.IPAddress))
	assert.Equal(REPLY_ACCEPTED, outcome)
	assert.Equal(dc.PacketID, token.PacketID)

	outcome, token, _ = session.OnReply(mustFrame(t, inverterReply(testInverter, ac.PacketID, speedwire.AC_QUERY, 0, 0, rec)), addr(testInverter.IPAddress))
	assert.Equal(REPLY_ACCEPTED, outcome)
	assert.Equal(ac.PacketID, token.PacketID)
	assert.Equal(0, session.Size())

	outcome, _, _ = session.OnReply(mustFrame(t, inverterReply(testInverter, ac.PacketID, speedwire.AC_QUERY, 0, 0, rec)), addr(testInverter.IPAddress))
	assert.Equal(REPLY_NO_TOKEN, outcome, "a duplicate reply has no token")
}

func TestCommandSessionRejectsMismatchedReply(t *testing.T) {
	assert := assert.New(t)

	session, _ := newLoggedInSession(t)
	token, err := session.SendQuery(testInverter, speedwire.AC_QUERY, 0x00464000, 0x004642ff)
	require.NoError(t, err)

	outcome, _, _ := session.OnReply(mustFrame(t, inverterReply(testInverter, token.PacketID, speedwire.AC_QUERY, 0, 0)), addr("192.168.1.99"))
	assert.Equal(REPLY_INVALID, outcome)
	outcome, _, _ = session.OnReply(mustFrame(t, inverterReply(testInverter, token.PacketID, speedwire.DC_QUERY, 0, 0)), addr(testInverter.IPAddress))
	assert.Equal(REPLY_INVALID, outcome)
	assert.Equal(1, session.Size(), "invalid replies keep the token")
}

func TestCommandSessionLostConnection(t *testing.T) {
	assert := assert.New(t)

	session, _ := newLoggedInSession(t)
	first, err := session.SendQuery(testInverter, speedwire.AC_QUERY, 0x00464000, 0x004642ff)
	require.NoError(t, err)
	_, err = session.SendQuery(testInverter, speedwire.DC_QUERY, 0x00251e00, 0x00251eff)
	require.NoError(t, err)

	outcome, token, records := session.OnReply(mustFrame(t, inverterReply(testInverter, first.PacketID, speedwire.AC_QUERY, speedwire.ERROR_LOST_CONNECTION, 0)), addr(testInverter.IPAddress))
	assert.Equal(REPLY_LOST_CONNECTION, outcome)
	assert.NotNil(token)
	assert.Empty(records)
	assert.Equal(1, session.Size())
	assert.True(session.NeedsLogin())
	assert.Equal(LOGGED_OUT, session.State())

	_, err = session.SendQuery(testInverter, speedwire.AC_QUERY, 0x00464000, 0x004642ff)
	assert.ErrorIs(err, ErrNeedsLogin)
}

func TestCommandSessionLoginErrors(t *testing.T) {
	for code, expected := range map[uint16]ReplyOutcome{
		speedwire.ERROR_BAD_PASSWORD: REPLY_BAD_PASSWORD,
		0x0015:                       REPLY_LOGIN_FAILED,
	} {
		sender := &recordingSender{}
		session := NewCommandSession(testLocal, sender, zap.Must(zap.NewDevelopment()))
		require.NoError(t, session.Login([]domain.Device{testInverter}, speedwire.USER_GROUP_USER, "0000", 1700000000))

		outcome, _, _ := session.OnReply(mustFrame(t, inverterReply(testInverter, 1, speedwire.LOGIN, code, 0)), addr(testInverter.IPAddress))
		assert.Equal(t, expected, outcome, "error code 0x%04x", code)
		assert.True(t, session.NeedsLogin())
		assert.Equal(t, 0, session.Size())
	}
}

func TestCommandSessionQueryError(t *testing.T) {
	assert := assert.New(t)

	session, _ := newLoggedInSession(t)
	token, err := session.SendQuery(testInverter, speedwire.AC_QUERY, 0x00464000, 0x004642ff)
	require.NoError(t, err)

	outcome, _, _ := session.OnReply(mustFrame(t, inverterReply(testInverter, token.PacketID, speedwire.AC_QUERY, 0x0015, 0)), addr(testInverter.IPAddress))
	assert.Equal(REPLY_QUERY_ERROR, outcome)
	assert.Equal(0, session.Size())
	assert.False(session.NeedsLogin())
}

func TestCommandSessionFragments(t *testing.T) {
	assert := assert.New(t)

	session, _ := newLoggedInSession(t)
	token, err := session.SendQuery(testInverter, speedwire.AC_QUERY, 0x00464000, 0x004642ff)
	require.NoError(t, err)

	rec := testRecord{registerID: 0x00464000, connector: 1, typ: domain.REGISTER_TYPE_SIGNED, time: 100, words: []uint32{1500}}
	for _, fragment := range []uint16{2, 1} {
		outcome, tok, records := session.OnReply(mustFrame(t, inverterReply(testInverter, token.PacketID, speedwire.AC_QUERY, 0, fragment, rec)), addr(testInverter.IPAddress))
		assert.Equal(REPLY_FRAGMENT, outcome)
		assert.Equal(fragment, tok.Fragments)
		assert.Len(records, 1)
		assert.Equal(1, session.Size())
	}

	outcome, _, records := session.OnReply(mustFrame(t, inverterReply(testInverter, token.PacketID, speedwire.AC_QUERY, 0, 0, rec)), addr(testInverter.IPAddress))
	assert.Equal(REPLY_ACCEPTED, outcome)
	assert.Len(records, 1)
	assert.Equal(0, session.Size())
}

func TestCommandSessionPacketIDWraps(t *testing.T) {
	session := NewCommandSession(testLocal, &recordingSender{}, zap.Must(zap.NewDevelopment()))
	session.packetID = 0x7ffe

	assert.Equal(t, uint16(0x7fff), session.nextPacketID())
	assert.Equal(t, uint16(1), session.nextPacketID())
}

func TestCommandSessionSendFailure(t *testing.T) {
	session, sender := newLoggedInSession(t)
	sender.err = errors.New("network unreachable")

	_, err := session.SendQuery(testInverter, speedwire.AC_QUERY, 0x00464000, 0x004642ff)
	assert.Error(t, err)
	assert.Equal(t, 0, session.Size())
}

func TestCommandSessionLogoff(t *testing.T) {
	session, sender := newLoggedInSession(t)

	require.NoError(t, session.Logoff([]domain.Device{testInverter, testMeter}))
	require.Len(t, sender.sent, 1)
	// logoff datagrams are shorter than a full inverter header
	command := binary.LittleEndian.Uint32(sender.sent[0].datagram[speedwire.EXT_HEADER_SIZE+22:])
	assert.Equal(t, uint32(speedwire.LOGOFF), command)
	assert.Equal(t, LOGGED_OUT, session.State())
}
