package actor

import (
	"context"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/util"
	"github.com/berfenger/speedwire2mqtt/internal/util/actorutil"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWaker struct {
	mu    sync.Mutex
	hosts []string
}

func (w *recordingWaker) Wake(ctx context.Context, host string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hosts = append(w.hosts, host)
	return 200, nil
}

func (w *recordingWaker) woken() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.hosts...)
}

func TestDiscoveryActorFindsEmeter(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.Speedwire.DiscoveryTimeoutMillis = 200
	cfg.Speedwire.Devices = []string{"192.168.1.50"}

	es := eventstream.NewEventStream()
	discovered := make(chan domain.DevicesDiscoveredEvent, 4)
	es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.DevicesDiscoveredEvent); ok {
			discovered <- e
		}
	})

	sender := &recordingSender{}
	waker := &recordingWaker{}
	act := NewDiscoveryActor(&cfg, sender, nil, waker, "192.168.1.2", es, logger)
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return act }))
	defer context.Poison(pid)

	b := &speedwire.EmeterPacketBuilder{SusyID: 349, SerialNumber: 1901431377, Time: 1000}
	b.Add(speedwire.ObisSignature{Channel: 0, Index: 1, Type: 4, Tariff: 0}, 1500)
	assert.Eventually(func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) >= 2
	}, time.Second, 10*time.Millisecond)
	es.Publish(domain.DatagramReceived{Data: b.Bytes(), Src: netip.MustParseAddr("192.168.1.60")})

	select {
	case evt := <-discovered:
		require.Len(t, evt.Devices, 1)
		assert.Equal(uint32(1901431377), evt.Devices[0].SerialNumber)
		assert.Equal(domain.DEVICE_CLASS_EMETER, evt.Devices[0].DeviceClass)
		assert.Equal("192.168.1.2", evt.Devices[0].InterfaceIP)
	case <-time.After(3 * time.Second):
		t.Fatal("no DevicesDiscoveredEvent")
	}
	// the pre-registered inverter never answered
	assert.Equal([]string{"192.168.1.50"}, waker.woken())

	res, err := context.RequestFuture(pid, domain.GetDevicesRequest{}, time.Second).Result()
	require.NoError(t, err)
	devices, ok := res.(domain.GetDevicesResponse)
	require.True(t, ok)
	assert.Len(devices.Devices, 1)
}

func TestDiscoveryActorHealthReportsState(t *testing.T) {
	assert := assert.New(t)
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.Speedwire.DiscoveryTimeoutMillis = 5000
	act := NewDiscoveryActor(&cfg, &recordingSender{}, nil, nil, "", eventstream.NewEventStream(), logger)
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return act }))
	defer context.Poison(pid)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.True(health.Healthy)
	assert.Equal(domain.ACTOR_ID_DISCOVERY, health.Id)
	assert.True(strings.HasPrefix(health.State, "discovering devices=0"))
}
