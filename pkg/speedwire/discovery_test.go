package speedwire

import (
	"encoding/hex"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryResponseIP(t *testing.T) {
	assert := assert.New(t)

	frame, err := DecodeFrame(mustHex(t, discoveryReplyHex))
	require.NoError(t, err)

	tags := Tags(frame)
	require.Len(t, tags, 4)
	assert.Equal(uint16(0x0010), tags[1].ID)
	assert.Equal([]byte{0x00, 0x01, 0x00, 0x03}, tags[1].Data)

	ip, ok := DiscoveryResponseIP(frame)
	assert.True(ok)
	assert.Equal(netip.MustParseAddr("192.168.178.22"), ip)
}

func TestDiscoveryResponseIPMissing(t *testing.T) {
	request, err := DecodeFrame(DiscoveryRequest())
	require.NoError(t, err)
	_, ok := DiscoveryResponseIP(request)
	assert.False(t, ok)

	inverter, err := DecodeFrame(mustHex(t, statusReplyHex))
	require.NoError(t, err)
	_, ok = DiscoveryResponseIP(inverter)
	assert.False(t, ok)
}

func TestDiscoveryTagsStopAtTruncation(t *testing.T) {
	buf := mustHex(t, discoveryReplyHex)
	// cut inside the ip tag
	frame, err := DecodeFrame(buf[:len(buf)-6])
	require.NoError(t, err)

	assert.Len(t, Tags(frame), 3)
	_, ok := DiscoveryResponseIP(frame)
	assert.False(t, ok)
}

func TestDiscoveryRequestIsCopied(t *testing.T) {
	a := DiscoveryRequest()
	a[0] = 0
	assert.True(t, IsDiscoveryRequest(DiscoveryRequest()))
	assert.Equal(t, "534d4100000402a0ffffffff0000002000000000", hex.EncodeToString(DiscoveryRequest()))
}
