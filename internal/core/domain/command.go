package domain

const (
	BRIDGE_COMMAND_DISCOVER = "discover"
)

// ParseBridgeCommand maps a bridge command payload to the request it triggers.
func ParseBridgeCommand(payload string) (ActorRequest, bool) {
	switch payload {
	case BRIDGE_COMMAND_DISCOVER:
		return DiscoverDevicesRequest{}, true
	}
	return nil, false
}

// ensure interface compliance
var _ ActorRequest = (*DiscoverDevicesRequest)(nil)
