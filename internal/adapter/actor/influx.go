package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	influxMaxBatch      = 200
	influxFlushInterval = 10 * time.Second
)

// SampleWriter stores batches of samples.
type SampleWriter interface {
	Ping(ctx context.Context) error
	Write(ctx context.Context, samples []domain.MeasurementSample) error
	Close()
}

type InfluxActor struct {
	behavior       actor.Behavior
	stash          *actorutil.Stash
	scheduler      *scheduler.TimerScheduler
	cancelFlush    scheduler.CancelFunc
	writer         SampleWriter
	timeout        time.Duration
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	pending        []domain.MeasurementSample
	written        uint64
	failed         uint64
	closed         bool
	logger         *zap.Logger
}

type influxFlushTick struct{}

type influxPingResult struct {
	Error error
}

type influxWriteResult struct {
	Count int
	Error error
}

func NewInfluxActor(writer SampleWriter, timeout time.Duration, eventStream *eventstream.EventStream, logger *zap.Logger) *InfluxActor {
	act := &InfluxActor{
		writer:      writer,
		timeout:     timeout,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_INFLUX, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *InfluxActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *InfluxActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("influx@starting started")
		writer := state.writer
		actorutil.NewBackgroundTask(ctx, func() (*influxPingResult, error) {
			c, cancel := context.WithTimeout(context.Background(), state.timeout)
			defer cancel()
			return &influxPingResult{Error: writer.Ping(c)}, nil
		}).Recover(func(err error) influxPingResult {
			return influxPingResult{Error: err}
		}).WithTimeout(state.timeout + time.Second).PipeTo(ctx.Self())
	case influxPingResult:
		if msg.Error != nil {
			// let the supervisor retry with backoff
			state.logger.Error("influx@starting ping failed", zap.Error(msg.Error))
			panic(msg.Error)
		}
		state.logger.Info("influx@starting connected")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.cancelFlush = state.scheduler.SendRepeatedly(influxFlushInterval, influxFlushInterval, ctx.Self(), influxFlushTick{})
		self, root := ctx.Self(), ctx.ActorSystem().Root
		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(evt any) {
			root.Send(self, evt)
		}, func(evt any) bool {
			switch evt.(type) {
			case domain.MeasurementUpdateEvent, domain.BlockCompletedEvent:
				return true
			}
			return false
		})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("influx@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *InfluxActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_INFLUX,
			Healthy: true,
			State:   fmt.Sprintf("written=%d failed=%d", state.written, state.failed),
		})
	case domain.MeasurementUpdateEvent:
		state.pending = append(state.pending, msg.Sample)
		if len(state.pending) >= influxMaxBatch {
			state.flush(ctx)
		}
	case domain.BlockCompletedEvent:
		state.flush(ctx)
	case influxFlushTick:
		state.flush(ctx)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("influx@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *InfluxActor) flush(ctx actor.Context) {
	if len(state.pending) == 0 {
		return
	}
	batch := state.pending
	state.pending = nil
	writer := state.writer
	actorutil.NewBackgroundTask(ctx, func() (*influxWriteResult, error) {
		c, cancel := context.WithTimeout(context.Background(), state.timeout)
		defer cancel()
		return &influxWriteResult{Count: len(batch), Error: writer.Write(c, batch)}, nil
	}).Recover(func(err error) influxWriteResult {
		return influxWriteResult{Count: len(batch), Error: err}
	}).WithTimeout(state.timeout + time.Second).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WritingReceive)
}

func (state *InfluxActor) WritingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case influxWriteResult:
		if msg.Error != nil {
			state.failed += uint64(msg.Count)
			state.logger.Warn("influx@writing write failed, samples dropped", zap.Int("count", msg.Count), zap.Error(msg.Error))
		} else {
			state.written += uint64(msg.Count)
			state.logger.Debug("influx@writing written", zap.Int("count", msg.Count))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.MeasurementUpdateEvent:
		state.pending = append(state.pending, msg.Sample)
	case influxFlushTick:
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.stash.Stash(ctx, msg)
	}
}

func (state *InfluxActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.cancelFlush != nil {
		state.cancelFlush()
		state.cancelFlush = nil
	}
}

func (state *InfluxActor) stop() {
	state.unsubscribe()
	if !state.closed {
		state.writer.Close()
		state.closed = true
	}
}
