package actor

import (
	"fmt"
	"net/netip"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// DatagramSocket is the socket the udp actor owns.
type DatagramSocket interface {
	Open() error
	Close() error
	ReadLoop(handler func(data []byte, src netip.Addr)) error
}

type UDPActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	socket      DatagramSocket
	eventStream *eventstream.EventStream
	logger      *zap.Logger
}

type readLoopStopped struct {
	Error error
}

func NewUDPActor(socket DatagramSocket, eventStream *eventstream.EventStream, logger *zap.Logger) *UDPActor {
	act := &UDPActor{
		socket:      socket,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_UDP, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *UDPActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *UDPActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("udp@starting started")
		if err := state.socket.Open(); err != nil {
			panic(err)
		}
		state.startReadLoop(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.socket.Close()
	default:
		state.logger.Debug("udp@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// startReadLoop publishes every datagram on the event stream until the socket is closed.
func (state *UDPActor) startReadLoop(ctx actor.Context) {
	self, root := ctx.Self(), ctx.ActorSystem().Root
	socket := state.socket
	stream := state.eventStream
	go func() {
		err := socket.ReadLoop(func(data []byte, src netip.Addr) {
			stream.Publish(domain.DatagramReceived{Data: data, Src: src})
		})
		root.Send(self, readLoopStopped{Error: err})
	}()
}

func (state *UDPActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("udp@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_UDP,
			Healthy: true,
			State:   "listening",
		})
	case readLoopStopped:
		if msg.Error != nil {
			// let the supervisor reopen the socket
			state.logger.Error("udp@default read loop failed", zap.Error(msg.Error))
			panic(msg.Error)
		}
		state.logger.Debug("udp@default read loop stopped")
	case *actor.Restarting:
		state.socket.Close()
	case *actor.Stopping:
		state.socket.Close()
	default:
		state.logger.Debug("udp@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
