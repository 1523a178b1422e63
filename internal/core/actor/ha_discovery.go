package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/config"
	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/service"
	"github.com/berfenger/speedwire2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes Home Assistant discovery messages for the bridge and every discovered device.
type HADiscoveryActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	discoveryActor *actor.PID
	mqttActor      *actor.PID
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	obisDefs       []domain.ObisDefinition
	registerDefs   []domain.RegisterDefinition
	announced      map[uint32]bool

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, discoveryActor *actor.PID, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	obisDefs, _ := domain.FindObisDefinitions(config.Speedwire.ObisMeasurements)
	registerDefs, _ := domain.FindRegisterDefinitions(config.Speedwire.InverterMeasurements)
	act := &HADiscoveryActor{
		config:         config,
		discoveryActor: discoveryActor,
		mqttActor:      mqttActor,
		eventStream:    eventStream,
		obisDefs:       obisDefs,
		registerDefs:   registerDefs,
		announced:      map[uint32]bool{},
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		// wait for mqtt before announcing anything
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 5*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		self, root := ctx.Self(), ctx.ActorSystem().Root
		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(evt any) {
			root.Send(self, evt)
		}, func(evt any) bool {
			_, ok := evt.(domain.DevicesDiscoveredEvent)
			return ok
		})
		state.publish(ctx, nil)
		if state.discoveryActor != nil {
			actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.discoveryActor, domain.GetDevicesRequest{}, 5*time.Second), func(err error) any {
				return domain.GetDevicesResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				}
			})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesResponse:
		if err := msg.Failure(); err != nil {
			state.logger.Warn("hadiscovery@default cannot get devices", zap.Error(err))
			return
		}
		state.publish(ctx, msg.Devices)
	case domain.DevicesDiscoveredEvent:
		state.publish(ctx, msg.Devices)
	case domain.PublishDiscoveryResponse:
		if err := msg.Failure(); err != nil {
			state.logger.Warn("hadiscovery@default publish failed", zap.Error(err))
		}
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("hadiscovery@default: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// publish announces the bridge sensors on the first call and the sensors of devices not announced yet.
func (state *HADiscoveryActor) publish(ctx actor.Context, devices []domain.Device) {
	var fresh []domain.Device
	for _, d := range devices {
		if !state.announced[d.SerialNumber] {
			fresh = append(fresh, d)
		}
	}
	if devices != nil && len(fresh) == 0 {
		return
	}
	sensors := DiscoverySensors(state.config.MQTT.BaseTopic, fresh, state.obisDefs, state.registerDefs)
	for _, d := range fresh {
		state.announced[d.SerialNumber] = true
	}
	state.logger.Info("hadiscovery@default publishing sensors", zap.Int("devices", len(fresh)), zap.Int("sensors", len(sensors)))
	ctx.Request(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors: sensors,
	})
}

func (state *HADiscoveryActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}

// DiscoverySensors builds the bridge sensors plus one sensor per configured measurement of each device.
func DiscoverySensors(baseTopic string, devices []domain.Device, obisDefs []domain.ObisDefinition, registerDefs []domain.RegisterDefinition) []domain.GenericSensor {
	var sensors []domain.GenericSensor

	bridgeDevice := domain.BridgeDevice(baseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)

	for _, d := range devices {
		device := domain.SpeedwireDevice(d)
		device.ViaDevice = bridgeDevice.Id
		var deviceSensors []domain.GenericSensor
		if d.DeviceClass == domain.DEVICE_CLASS_EMETER {
			for _, def := range obisDefs {
				deviceSensors = append(deviceSensors, domain.MeasurementSensor(device, d.SerialNumber, def.Name(), def.Type))
			}
		} else {
			for _, def := range service.QueriedDefinitions(d.DeviceClass, registerDefs) {
				deviceSensors = append(deviceSensors, domain.MeasurementSensor(device, d.SerialNumber, def.Name, def.Type))
			}
		}
		// the full device description is sent once per device
		for i := range deviceSensors {
			if i > 0 {
				deviceSensors[i].Device = domain.IdDevice(device)
			}
		}
		sensors = append(sensors, deviceSensors...)
	}
	return sensors
}
