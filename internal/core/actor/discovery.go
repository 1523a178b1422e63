package actor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/config"
	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"
	"github.com/berfenger/speedwire2mqtt/internal/core/service"
	. "github.com/berfenger/speedwire2mqtt/internal/util/actorutil"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

// DiscoveryActor keeps the set of speedwire devices up to date.
// A discovery round broadcasts a request, waits for answers, wakes silent pre-registered devices and tries once more.
type DiscoveryActor struct {
	ActorWithStates
	scheduler      *scheduler.TimerScheduler
	cancelInterval scheduler.CancelFunc

	discovery      *service.DeviceDiscovery
	waker          port.DeviceWaker
	interfaceIP    string
	timeout        time.Duration
	interval       time.Duration
	wakeupTimeout  time.Duration
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription

	published []domain.Device
	phase     int
	rounds    uint64

	logger *zap.Logger
}

type discoveryTick struct {
}

type discoveryPhaseTimeout struct {
	phase int
}

type wakeupCompleted struct {
	Woken  int
	Failed int
}

func NewDiscoveryActor(config *config.Config, sender port.PacketSender, tags port.TagResolver, waker port.DeviceWaker,
	interfaceIP string, eventStream *eventstream.EventStream, logger *zap.Logger) *DiscoveryActor {
	cfg := config.Speedwire
	log := ActorLogger(domain.ACTOR_ID_DISCOVERY, logger)
	local := speedwire.Address{SusyID: cfg.SusyID, SerialNumber: cfg.SerialNumber}
	act := &DiscoveryActor{
		ActorWithStates: ActorWithStates{Behavior: actor.NewBehavior()},
		discovery:       service.NewDeviceDiscovery(local, sender, tags, cfg.Devices, cfg.RequiredSerials, log),
		waker:           waker,
		interfaceIP:     interfaceIP,
		timeout:         millis(cfg.DiscoveryTimeoutMillis),
		interval:        time.Duration(cfg.DiscoveryIntervalMinutes) * time.Minute,
		wakeupTimeout:   millis(cfg.WakeupTimeoutMillis),
		eventStream:     eventStream,
		logger:          log,
	}
	act.Become(&discoveringState{act})
	return act
}

func (state *DiscoveryActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// receiveCommon handles the messages served in every state. It returns false for unhandled messages.
func (state *DiscoveryActor) receiveCommon(ctx actor.Context) bool {
	stateName := state.StateName()
	switch ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("discovery@" + stateName + " started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		self, root := ctx.Self(), ctx.ActorSystem().Root
		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(evt any) {
			root.Send(self, evt)
		}, func(evt any) bool {
			_, ok := evt.(domain.DatagramReceived)
			return ok
		})
		if state.interval > 0 {
			state.cancelInterval = state.scheduler.SendRepeatedly(state.interval, state.interval, self, discoveryTick{})
		}
		state.startRound(ctx)
	case domain.GetDevicesRequest:
		ctx.Respond(domain.GetDevicesResponse{Devices: state.discovery.Devices()})
	case domain.ActorHealthRequest:
		state.logger.Debug("discovery@" + stateName + ": ActorHealthRequest")
		missing := state.discovery.Missing()
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DISCOVERY,
			Healthy: true,
			State:   fmt.Sprintf("%s devices=%d missing=%v", stateName, len(state.discovery.Devices()), missing),
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		return false
	}
	return true
}

func (state *DiscoveryActor) startRound(ctx actor.Context) {
	state.rounds++
	state.logger.Info("discovery: starting round", zap.Uint64("round", state.rounds))
	state.Become(&discoveringState{state})
	state.startPhase(ctx, 1)
}

func (state *DiscoveryActor) startPhase(ctx actor.Context, phase int) {
	state.phase = phase
	if err := state.discovery.Start(); err != nil {
		state.logger.Warn("discovery: cannot send discovery requests", zap.Error(err))
	}
	state.scheduler.SendOnce(state.timeout, ctx.Self(), discoveryPhaseTimeout{phase: phase})
}

func (state *DiscoveryActor) endRound() {
	if state.interfaceIP != "" {
		state.discovery.SetInterfaceIP(state.interfaceIP)
	}
	devices := state.discovery.Devices()
	state.logger.Info("discovery: round completed", zap.Int("devices", len(devices)))
	for _, d := range devices {
		state.logger.Info("discovery: device", zap.Stringer("device", d))
	}
	if missing := state.discovery.Missing(); len(missing) > 0 {
		state.logger.Warn("discovery: required devices not found", zap.Any("serials", missing))
	}
	state.publish(devices)
	state.Become(&idleState{state})
}

// publish announces the device set if it differs from the last announced one.
func (state *DiscoveryActor) publish(devices []domain.Device) {
	if state.published != nil && slices.Equal(state.published, devices) {
		return
	}
	state.published = devices
	if state.published == nil {
		state.published = []domain.Device{}
	}
	state.eventStream.Publish(domain.DevicesDiscoveredEvent{Devices: devices})
}

func (state *DiscoveryActor) wakeDevices(ctx actor.Context, ips []string) {
	state.logger.Info("discovery: waking up devices", zap.Strings("ips", ips))
	waker, timeout := state.waker, state.wakeupTimeout
	NewBackgroundTask(ctx, func() (*wakeupCompleted, error) {
		result := &wakeupCompleted{}
		for _, ip := range ips {
			c, cancel := context.WithTimeout(context.Background(), timeout)
			_, err := waker.Wake(c, ip)
			cancel()
			if err != nil {
				logger.Error(err)
				result.Failed++
				continue
			}
			result.Woken++
		}
		return result, nil
	}).Recover(func(err error) wakeupCompleted {
		return wakeupCompleted{Failed: len(ips)}
	}).PipeTo(ctx.Self())
}

func (state *DiscoveryActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.cancelInterval != nil {
		state.cancelInterval()
		state.cancelInterval = nil
	}
}

type discoveringState struct {
	*DiscoveryActor
}

func (s *discoveringState) Name() string {
	return "discovering"
}

func (s *discoveringState) Receive(ctx actor.Context) {
	if s.receiveCommon(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.DatagramReceived:
		s.discovery.OnDatagram(msg.Data, msg.Src)
	case discoveryPhaseTimeout:
		if msg.phase != s.phase {
			return
		}
		if msg.phase == 1 {
			if ips := s.discovery.WakeCandidates(); len(ips) > 0 && s.waker != nil {
				s.wakeDevices(ctx, ips)
				return
			}
		}
		s.endRound()
	case wakeupCompleted:
		s.logger.Debug("discovery@discovering wakeup completed", zap.Int("woken", msg.Woken), zap.Int("failed", msg.Failed))
		s.startPhase(ctx, 2)
	case domain.DiscoverDevicesRequest, discoveryTick:
		s.logger.Debug("discovery@discovering round already running")
	default:
		s.logger.Debug("discovery@discovering default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

type idleState struct {
	*DiscoveryActor
}

func (s *idleState) Name() string {
	return "idle"
}

func (s *idleState) Receive(ctx actor.Context) {
	if s.receiveCommon(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.DatagramReceived:
		if s.discovery.OnDatagram(msg.Data, msg.Src) {
			if s.interfaceIP != "" {
				s.discovery.SetInterfaceIP(s.interfaceIP)
			}
			s.publish(s.discovery.Devices())
		}
	case domain.DiscoverDevicesRequest, discoveryTick:
		s.startRound(ctx)
	default:
		s.logger.Debug("discovery@idle default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// ensure interface compliance
var _ ActorState = (*discoveringState)(nil)
var _ ActorState = (*idleState)(nil)
