package speedwire

import (
	"encoding/binary"
	"net/netip"
)

const (
	TAG_DISCOVERY_IP = 0x0030
	tagHeaderSize    = 4
)

var discoveryRequest = []byte{
	0x53, 0x4d, 0x41, 0x00, 0x00, 0x04, 0x02, 0xa0,
	0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x20,
	0x00, 0x00, 0x00, 0x00,
}

// DiscoveryRequest returns the multicast discovery datagram.
func DiscoveryRequest() []byte {
	return append([]byte(nil), discoveryRequest...)
}

// IsDiscoveryRequest reports whether buf is a discovery request, such as our own multicast echo.
func IsDiscoveryRequest(buf []byte) bool {
	if len(buf) < len(discoveryRequest) {
		return false
	}
	for i := range discoveryRequest {
		if buf[i] != discoveryRequest[i] {
			return false
		}
	}
	return true
}

// Tag is a tagged field of a discovery datagram.
type Tag struct {
	ID   uint16
	Data []byte
}

// Tags walks the tag list of a discovery frame. A truncated tag ends the walk.
func Tags(frame Frame) []Tag {
	payload := frame.Payload()
	var tags []Tag
	offset := 0
	for offset+tagHeaderSize <= len(payload) {
		length := int(binary.BigEndian.Uint16(payload[offset:]))
		id := binary.BigEndian.Uint16(payload[offset+2:])
		if length == 0 && id == 0 {
			break
		}
		end := offset + tagHeaderSize + length
		if end > len(payload) {
			break
		}
		tags = append(tags, Tag{ID: id, Data: payload[offset+tagHeaderSize : end]})
		offset = end
	}
	return tags
}

// DiscoveryResponseIP extracts the device ip address from a discovery response.
func DiscoveryResponseIP(frame Frame) (netip.Addr, bool) {
	if !frame.IsDiscovery() {
		return netip.Addr{}, false
	}
	for _, tag := range Tags(frame) {
		if tag.ID == TAG_DISCOVERY_IP && len(tag.Data) == 4 {
			return netip.AddrFrom4([4]byte(tag.Data)), true
		}
	}
	return netip.Addr{}, false
}
