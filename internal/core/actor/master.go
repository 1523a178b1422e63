package actor

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	adactor "github.com/berfenger/speedwire2mqtt/internal/adapter/actor"
	"github.com/berfenger/speedwire2mqtt/internal/config"
	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/events"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"
	. "github.com/berfenger/speedwire2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type UDPActorProvider func(*eventstream.EventStream) *adactor.UDPActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type InfluxActorProvider func(*eventstream.EventStream) *adactor.InfluxActor

// SpeedwireDeps are the adapters shared by the discovery and speedwire actors.
type SpeedwireDeps struct {
	Sender      port.PacketSender
	Tags        port.TagResolver
	Waker       port.DeviceWaker
	InterfaceIP string
}

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	deps                SpeedwireDeps
	udpActor            *actor.PID
	discoveryActor      *actor.PID
	speedwireActor      *actor.PID
	mqttActor           *actor.PID
	influxActor         *actor.PID
	udpActorProvider    UDPActorProvider
	mqttActorProvider   MQTTActorProvider
	influxActorProvider InfluxActorProvider
	logger              *zap.Logger
}

type healthCheckResult struct {
	children  map[string]*actor.PID
	healthy   map[string]bool
	states    map[string]string
	received  int
	respondTo *actor.PID
}

// NewMasterOfPuppetsActor builds the root actor. influxActorProvider may be nil.
func NewMasterOfPuppetsActor(config config.Config, deps SpeedwireDeps, udpActorProvider UDPActorProvider, mqttActorProvider MQTTActorProvider,
	influxActorProvider InfluxActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         eventstream.NewEventStream(),
		deps:                deps,
		udpActorProvider:    udpActorProvider,
		mqttActorProvider:   mqttActorProvider,
		influxActorProvider: influxActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// the socket must be open before anything is sent
		udpActorPID, err := state.startUDPActor(ctx)
		if err != nil {
			panic(err)
		}
		state.udpActor = udpActorPID
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.udpActor, domain.ActorHealthRequest{}, 5*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_UDP,
				Healthy: false,
			}
		})
	case domain.ActorHealthResponse:
		if msg.Id != domain.ACTOR_ID_UDP {
			return
		}
		if !msg.Healthy {
			panic(errors.New("udp socket could not be opened"))
		}
		state.startChildren(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startChildren(ctx actor.Context) {
	var err error

	// start Discovery child
	if state.discoveryActor, err = state.startDiscoveryActor(ctx); err != nil {
		panic(err)
	}

	// start MQTT child
	if state.mqttActor, err = state.startMQTTActor(ctx); err != nil {
		panic(err)
	}

	// start Influx child
	if state.influxActorProvider != nil {
		if state.influxActor, err = state.startInfluxActor(ctx); err != nil {
			panic(err)
		}
	}

	// start Speedwire child
	if state.speedwireActor, err = state.startSpeedwireActor(ctx); err != nil {
		panic(err)
	}

	// start HA Discovery
	if state.config.MQTT.HADiscoveryEnable {
		if _, err := state.startHADiscoveryActor(ctx); err != nil {
			panic(err)
		}
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.children())
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.currentHealthCheck.children {
			id := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetDevicesRequest:
		ctx.Forward(state.discoveryActor)
	case adactor.ParsedCommand:
		// redirect parsedCommand to actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.Error(err))
				return
			}
			switch pcmd := cmd.(type) {
			case domain.DiscoverDevicesRequest:
				ctx.Send(state.discoveryActor, pcmd)
			}
		}
	case *actor.Terminated:
		// the socket owner can not be recovered by its supervisor
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_UDP) {
			state.logger.Error("master@default udp error")
			panic(errors.New("udp terminated"))
		}
	default:
		state.logger.Debug("master@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.record(msg)
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) children() map[string]*actor.PID {
	children := map[string]*actor.PID{
		domain.ACTOR_ID_UDP:       state.udpActor,
		domain.ACTOR_ID_DISCOVERY: state.discoveryActor,
		domain.ACTOR_ID_SPEEDWIRE: state.speedwireActor,
		domain.ACTOR_ID_MQTT:      state.mqttActor,
	}
	if state.influxActor != nil {
		children[domain.ACTOR_ID_INFLUX] = state.influxActor
	}
	return children
}

func (state *MasterOfPuppetsActor) startUDPActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	udpProps := actor.PropsFromProducer(func() actor.Actor {
		return state.udpActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(udpProps, domain.ACTOR_ID_UDP)
}

func (state *MasterOfPuppetsActor) startDiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	discoveryProps := actor.PropsFromProducer(func() actor.Actor {
		return NewDiscoveryActor(&state.config, state.deps.Sender, state.deps.Tags, state.deps.Waker, state.deps.InterfaceIP, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(discoveryProps, domain.ACTOR_ID_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startSpeedwireActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	sink := events.NewEventStreamSink(state.eventStream)
	speedwireProps := actor.PropsFromProducer(func() actor.Actor {
		act, err := NewSpeedwireActor(&state.config, state.deps.Sender, state.deps.Tags, sink, state.discoveryActor, state.eventStream, state.logger)
		if err != nil {
			panic(err)
		}
		return act
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(speedwireProps, domain.ACTOR_ID_SPEEDWIRE)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.discoveryActor, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startInfluxActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(30*time.Second, 1*time.Second)

	influxProps := actor.PropsFromProducer(func() actor.Actor {
		return state.influxActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(influxProps, domain.ACTOR_ID_INFLUX)
}

func (state *healthCheckResult) reset(children map[string]*actor.PID) {
	state.children = children
	state.healthy = map[string]bool{}
	state.states = map[string]string{}
	state.received = 0
}

func (state *healthCheckResult) record(resp domain.ActorHealthResponse) {
	if _, ok := state.children[resp.Id]; !ok {
		return
	}
	state.received++
	state.healthy[resp.Id] = resp.Healthy
	if resp.State != "" {
		state.states[resp.Id] = resp.State
	}
}

func (state *healthCheckResult) allReceived() bool {
	return state.received >= len(state.children)
}

func (state *healthCheckResult) allHealthy() bool {
	for id := range state.children {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	var parts []string
	for id, s := range state.states {
		parts = append(parts, id+": "+s)
	}
	sort.Strings(parts)
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   strings.Join(parts, "; "),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
