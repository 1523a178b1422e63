package actor

import (
	"errors"
	"fmt"
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
	"go.uber.org/zap"
)

// SpeedwireActor runs the polling loop: login, query rounds, reply dispatching and averaging.
type SpeedwireActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config         *config.Config
	discoveryActor *actor.PID
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	userGroup      speedwire.UserGroup
	now            func() time.Time

	obis       *service.ObisFilter
	registry   *service.MeasurementRegistry
	session    *service.CommandSession
	averaging  *service.AveragingProcessor
	planner    *service.QueryPlanner
	dispatcher *service.Dispatcher
	devices    service.DeviceList

	round       uint64
	roundActive bool
	loginFailed bool
	datagrams   uint64

	logger *zap.Logger
}

type queryTick struct {
}

type roundTimeout struct {
	round uint64
}

func NewSpeedwireActor(config *config.Config, sender port.PacketSender, tags port.TagResolver, sink port.MeasurementSink,
	discoveryActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) (*SpeedwireActor, error) {
	cfg := config.Speedwire
	log := ActorLogger(domain.ACTOR_ID_SPEEDWIRE, logger)

	group, err := speedwire.ParseUserGroup(cfg.UserGroup)
	if err != nil {
		return nil, err
	}
	obisDefs, unknown := domain.FindObisDefinitions(cfg.ObisMeasurements)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown obis measurements: %v", unknown)
	}
	registerDefs, unknown := domain.FindRegisterDefinitions(cfg.InverterMeasurements)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown inverter measurements: %v", unknown)
	}

	averaging := service.NewAveragingProcessor(cfg.ObisAveragingMillis, cfg.InverterAveragingMillis, sink)
	obis := service.NewObisFilter(log)
	obis.AddFilter(obisDefs...)
	obis.AddConsumer(averaging)
	registry := service.NewMeasurementRegistry(tags, log)
	registry.AddDefinition(registerDefs...)
	registry.AddConsumer(averaging)
	local := speedwire.Address{SusyID: cfg.SusyID, SerialNumber: cfg.SerialNumber}
	session := service.NewCommandSession(local, sender, log)

	act := &SpeedwireActor{
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		config:         config,
		discoveryActor: discoveryActor,
		eventStream:    eventStream,
		userGroup:      group,
		now:            time.Now,
		obis:           obis,
		registry:       registry,
		session:        session,
		averaging:      averaging,
		planner: &service.QueryPlanner{
			Interval:            millis(cfg.QueryIntervalMillis),
			ReceiveTimeout:      millis(cfg.ReceiveTimeoutMillis),
			NightInterval:       millis(cfg.NightQueryIntervalMillis),
			NightReceiveTimeout: millis(cfg.NightReceiveTimeoutMillis),
		},
		logger: log,
	}
	act.setDevices(nil)
	act.behavior.Become(act.StartingReceive)
	return act, nil
}

func millis(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (state *SpeedwireActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SpeedwireActor) setDevices(devices []domain.Device) {
	state.devices = service.DeviceList(devices)
	state.dispatcher = service.NewDispatcher(state.obis, state.registry, state.session, state.devices, state.logger)
}

func (state *SpeedwireActor) inverters() []domain.Device {
	var inverters []domain.Device
	for _, d := range state.devices {
		if d.DeviceClass.IsInverter() && d.IPAddress != "" {
			inverters = append(inverters, d)
		}
	}
	return inverters
}

func (state *SpeedwireActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("speedwire@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		self, root := ctx.Self(), ctx.ActorSystem().Root
		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(evt any) {
			root.Send(self, evt)
		}, func(evt any) bool {
			switch evt.(type) {
			case domain.DatagramReceived, domain.DevicesDiscoveredEvent:
				return true
			}
			return false
		})
		if state.discoveryActor == nil {
			state.becomeDefault(ctx)
			return
		}
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.discoveryActor, domain.GetDevicesRequest{}, 5*time.Second), func(err error) any {
			return domain.GetDevicesResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	case domain.GetDevicesResponse:
		if err := msg.Failure(); err != nil {
			state.logger.Warn("speedwire@starting no device list yet", zap.Error(err))
		} else {
			state.setDevices(msg.Devices)
		}
		state.becomeDefault(ctx)
	case domain.DevicesDiscoveredEvent:
		state.setDevices(msg.Devices)
	case domain.DatagramReceived:
		// datagrams are not replayed
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("speedwire@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *SpeedwireActor) becomeDefault(ctx actor.Context) {
	state.logger.Info("speedwire@starting ready", zap.Int("devices", len(state.devices)))
	state.behavior.Become(state.DefaultReceive)
	state.stash.UnstashAll(ctx)
	ctx.Send(ctx.Self(), queryTick{})
}

func (state *SpeedwireActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("speedwire@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SPEEDWIRE,
			Healthy: !state.loginFailed,
			State:   fmt.Sprintf("%s night=%t devices=%d", state.session.State(), state.planner.NightMode(), len(state.devices)),
		})
	case domain.DevicesDiscoveredEvent:
		state.logger.Debug("speedwire@default devices", zap.Int("count", len(msg.Devices)))
		state.setDevices(msg.Devices)
		state.session.RequireLogin()
	case domain.DatagramReceived:
		state.onDatagram(msg)
	case queryTick:
		state.onQueryTick(ctx)
	case roundTimeout:
		if state.roundActive && msg.round == state.round {
			state.logger.Debug("speedwire@default round timed out", zap.Int("missing_replies", state.session.Size()))
			state.session.Clear()
			state.endRound()
		}
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("speedwire@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SpeedwireActor) onQueryTick(ctx actor.Context) {
	inverters := state.inverters()
	if len(inverters) == 0 {
		state.scheduler.SendOnce(state.planner.QueryInterval(), ctx.Self(), queryTick{})
		return
	}

	if state.session.NeedsLogin() {
		state.logger.Info("speedwire@default login", zap.Int("inverters", len(inverters)), zap.Stringer("group", state.userGroup))
		state.roundActive = false
		state.session.Clear()
		if err := state.session.Logoff(inverters); err != nil {
			state.logger.Warn("speedwire@default logoff failed", zap.Error(err))
		}
		err := state.session.Login(inverters, state.userGroup, state.config.Speedwire.Password, uint32(state.now().Unix()))
		if errors.Is(err, speedwire.ErrPasswordTooLong) {
			state.loginFailed = true
			state.logger.Error("speedwire@default invalid password", zap.Error(err))
			return
		}
		if err != nil {
			state.logger.Warn("speedwire@default login request failed", zap.Error(err))
		}
		// wait for the login replies before querying
		state.scheduler.SendOnce(state.planner.QueryReceiveTimeout(), ctx.Self(), queryTick{})
		return
	}

	if state.roundActive {
		state.logger.Debug("speedwire@default previous round incomplete", zap.Int("missing_replies", state.session.Size()))
		state.endRound()
	}
	state.session.Clear()
	state.round++
	state.roundActive = true

	sent := 0
	for _, d := range inverters {
		for _, q := range service.QueriesFor(d.DeviceClass) {
			if _, err := state.session.SendQuery(d, q.Command, q.First, q.Last); err != nil {
				state.logger.Warn("speedwire@default query failed", zap.Stringer("device", d), zap.Error(err))
				continue
			}
			sent++
		}
	}
	if sent == 0 {
		state.roundActive = false
	} else {
		state.scheduler.SendOnce(state.planner.QueryReceiveTimeout(), ctx.Self(), roundTimeout{round: state.round})
	}
	state.scheduler.SendOnce(state.planner.QueryInterval(), ctx.Self(), queryTick{})
}

func (state *SpeedwireActor) onDatagram(msg domain.DatagramReceived) {
	state.datagrams++
	result := state.dispatcher.Dispatch(msg.Data, msg.Src)
	if result.Kind != service.DATAGRAM_INVERTER {
		return
	}
	switch result.Outcome {
	case service.REPLY_BAD_PASSWORD:
		state.loginFailed = true
	case service.REPLY_ACCEPTED:
		if state.session.State() == service.LOGGED_IN {
			state.loginFailed = false
		}
	}
	if state.roundActive && state.session.Size() == 0 {
		state.endRound()
	}
}

// endRound evaluates night mode and closes the measurement block of every inverter.
func (state *SpeedwireActor) endRound() {
	state.roundActive = false

	var mpp1 []*domain.MeasurementEntry
	for _, d := range state.inverters() {
		if d.DeviceClass == domain.DEVICE_CLASS_BATTERY_INVERTER {
			continue
		}
		if e, ok := state.registry.Entry(d.SerialNumber, domain.REGISTER_NAME_MPP1_POWER); ok {
			mpp1 = append(mpp1, e)
		}
	}
	wasNight := state.planner.NightMode()
	if night := state.planner.UpdateNightMode(mpp1); night != wasNight {
		state.logger.Info("speedwire@default night mode changed", zap.Bool("night", night),
			zap.Duration("interval", state.planner.QueryInterval()))
	}

	for _, d := range state.inverters() {
		w, ok := state.averaging.Window(domain.STREAM_INVERTER, d.SerialNumber)
		if !ok {
			continue
		}
		state.averaging.EndOfBlock(d, w.CurrentTimestamp)
	}
}

func (state *SpeedwireActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
