package domain

import (
	"net/netip"

	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_UDP          = "udp"
	ACTOR_ID_SPEEDWIRE    = "speedwire"
	ACTOR_ID_DISCOVERY    = "discovery"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_INFLUX       = "influx"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// ActorRequestMixIn lets a request name the actor its response is sent to.
// A nil RespondTo answers the sender.
type ActorRequestMixIn struct {
	RespondTo *actor.PID
}

type ActorRequest interface {
	ResponseTarget() *actor.PID
}

func (r ActorRequestMixIn) ResponseTarget() *actor.PID {
	return r.RespondTo
}

type ActorResponseMixIn struct {
	ResponseError error
}

type ActorResponse interface {
	Failure() error
}

func (r ActorResponseMixIn) Failure() error {
	return r.ResponseError
}

// DatagramReceived carries one UDP datagram from the socket reader to its subscribers.
type DatagramReceived struct {
	Data []byte
	Src  netip.Addr
}

type DiscoverDevicesRequest struct {
	ActorRequestMixIn
}

type DevicesDiscoveredEvent struct {
	Devices []Device
}

type GetDevicesRequest struct {
	ActorRequestMixIn
}

type GetDevicesResponse struct {
	ActorResponseMixIn
	Devices []Device
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
