package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]domain.MeasurementSample
}

func (w *fakeWriter) Ping(context.Context) error {
	return nil
}

func (w *fakeWriter) Write(_ context.Context, samples []domain.MeasurementSample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, samples)
	return nil
}

func (w *fakeWriter) Close() {}

func (w *fakeWriter) Batches() [][]domain.MeasurementSample {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]domain.MeasurementSample(nil), w.batches...)
}

func TestInfluxActorWritesBlocks(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	es := eventstream.NewEventStream()
	writer := &fakeWriter{}
	props := actor.PropsFromProducer(func() actor.Actor { return NewInfluxActor(writer, time.Second, es, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.True(result.(domain.ActorHealthResponse).Healthy)

	inverter := domain.Device{SusyID: 0x017a, SerialNumber: 3010538116, DeviceClass: domain.DEVICE_CLASS_PV_INVERTER}
	es.Publish(domain.MeasurementUpdateEvent{Sample: domain.MeasurementSample{Device: inverter, Name: "dc_power_mpp1", Value: 100}})
	es.Publish(domain.MeasurementUpdateEvent{Sample: domain.MeasurementSample{Device: inverter, Name: "dc_power_mpp2", Value: 200}})
	es.Publish(domain.BlockCompletedEvent{Device: inverter, Timer: 1})

	assert.Eventually(func() bool {
		return len(writer.Batches()) == 1
	}, 2*time.Second, 20*time.Millisecond)
	batches := writer.Batches()
	require.Len(t, batches, 1)
	assert.Len(batches[0], 2)
	assert.Equal("dc_power_mpp2", batches[0][1].Name)

	context.Stop(pid)
	time.Sleep(100 * time.Millisecond)
	as.Shutdown()
}

func TestInfluxActorConcurrentPublishers(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	es := eventstream.NewEventStream()
	writer := &fakeWriter{}
	props := actor.PropsFromProducer(func() actor.Actor { return NewInfluxActor(writer, time.Second, es, logger) })
	pid := context.Spawn(props)

	_, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)

	meter := domain.Device{SusyID: 349, SerialNumber: 1901431377, DeviceClass: domain.DEVICE_CLASS_EMETER}
	var wg sync.WaitGroup
	for g := 0; g < 3; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				es.Publish(domain.MeasurementUpdateEvent{Sample: domain.MeasurementSample{Device: meter, Name: "positive_active_power", Value: float64(i)}})
			}
		}()
	}
	wg.Wait()
	es.Publish(domain.BlockCompletedEvent{Device: meter, Timer: 1})

	written := func() int {
		n := 0
		for _, b := range writer.Batches() {
			n += len(b)
		}
		return n
	}
	assert.Eventually(func() bool {
		return written() == 150
	}, 2*time.Second, 20*time.Millisecond)

	context.Stop(pid)
	time.Sleep(100 * time.Millisecond)
	as.Shutdown()
}
