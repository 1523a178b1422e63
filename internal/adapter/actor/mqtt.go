package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/config"
	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/mqtt"
	"github.com/berfenger/speedwire2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	sent           uint64
	failed         uint64
	published      []rawMessage
	logger         *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")
		self, root := ctx.Self(), ctx.ActorSystem().Root

		// paho calls back from its own goroutines
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Info("mqtt@starting connected", zap.String("host", state.config.MQTT.Host), zap.Int("port", state.config.MQTT.Port))
		self, root := ctx.Self(), ctx.ActorSystem().Root
		client, logger := state.client, state.logger

		client.Publish(client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		state.subscribeEventStream(ctx)

		// bridge commands, e.g. "discover"
		client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := client.ParseMQTTCommand(m)
			if err != nil {
				logger.Warn("mqtt: ignoring command", zap.String("topic", m.Topic()), zap.Error(err))
				return
			}
			root.Send(self, ParsedCommand{Command: cmd})
		}, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// subscribeEventStream forwards sensor updates published by the speedwire engine to this actor.
func (state *MQTTActor) subscribeEventStream(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	self, root := ctx.Self(), ctx.ActorSystem().Root
	state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(evt any) {
		root.Send(self, domain.PublishSensorUpdateRequest{Event: evt.(domain.SensorUpdateEvent)})
	}, func(evt any) bool {
		_, ok := evt.(domain.SensorUpdateEvent)
		return ok
	})
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   state.healthState(),
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ResponseTarget(ctx, msg))
	case domain.PublishSensorUpdateRequest:
		state.publishSensorValue(ctx, msg.Event, msg.Retain, msg.ResponseTarget())
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery", zap.Int("sensors", len(msg.Sensors)))
		err := state.PublishHomeAssistantDiscovery(msg.Sensors)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		actorutil.Reply(ctx, msg, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf("%.*f", msg.Decimals, msg.Value),
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishSensorValue(ctx actor.Context, event domain.SensorUpdateEvent, retain bool, replyTo *actor.PID) {
	msg := state.event2MQTTMessage(event)
	if msg == nil {
		return
	}
	msg.retain = msg.retain || retain
	state.publish(ctx, *msg, replyTo)
	state.behavior.BecomeStacked(state.EventPublishResultReceive)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.publish(ctx, rawMessage{topic: topic, message: payload, retain: retain}, replyTo)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

// publish sends msg and reports its outcome to this actor as a publishResult.
func (state *MQTTActor) publish(ctx actor.Context, msg rawMessage, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: %s => %s", msg.topic, msg.message)
	self, root := ctx.Self(), ctx.ActorSystem().Root
	state.client.Publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	state.publishResultReceive(ctx, func(err error) domain.ActorResponse {
		return domain.PublishMessageResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
	})
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	state.publishResultReceive(ctx, func(err error) domain.ActorResponse {
		return domain.PublishSensorUpdateResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
	})
}

func (state *MQTTActor) publishResultReceive(ctx actor.Context, response func(error) domain.ActorResponse) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.failed++
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		} else {
			state.sent++
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, response(msg.Error))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.stash.Stash(ctx, msg)
	}
}

// healthState summarizes the publish counters.
func (state *MQTTActor) healthState() string {
	return fmt.Sprintf("connected published=%d failed=%d", state.sent, state.failed)
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(sensors []domain.GenericSensor) error {
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := state.client.HADiscoverySensorTopic(sensors[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.logger.Debug("mqtt: disconnect")
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
		state.client = nil
	}
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger("mqtt", logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

type publishedMessagesRequest struct{}

type publishedMessagesResponse struct {
	Messages map[string]string
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.subscribeEventStream(ctx)
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   fmt.Sprintf("dummy published=%d", len(state.published)),
		})
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishSensorUpdateRequest:
		if m := state.event2MQTTMessage(msg.Event); m != nil {
			state.published = append(state.published, *m)
			state.sent++
		}
		if msg.RespondTo != nil {
			ctx.Send(msg.RespondTo, domain.PublishSensorUpdateResponse{})
		}
	case domain.PublishMessageRequest:
		state.published = append(state.published, rawMessage{topic: msg.Topic, message: msg.Payload, retain: msg.Retain})
		actorutil.Reply(ctx, msg, domain.PublishMessageResponse{})
	case domain.PublishDiscoveryRequest:
		for _, s := range msg.Sensors {
			state.published = append(state.published, rawMessage{topic: state.client.HADiscoverySensorTopic(s), retain: true})
		}
		actorutil.Reply(ctx, msg, domain.PublishDiscoveryResponse{})
	case publishedMessagesRequest:
		messages := map[string]string{}
		for _, m := range state.published {
			messages[m.topic] = m.message
		}
		ctx.Respond(publishedMessagesResponse{Messages: messages})
	}
}
