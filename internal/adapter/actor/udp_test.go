package actor

import (
	"net/netip"
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

type fakeSocket struct {
	mu       sync.Mutex
	open     bool
	incoming chan []byte
}

func (s *fakeSocket) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.open = false
		close(s.incoming)
	}
	return nil
}

func (s *fakeSocket) ReadLoop(handler func(data []byte, src netip.Addr)) error {
	for data := range s.incoming {
		handler(data, netip.MustParseAddr("192.168.1.60"))
	}
	return nil
}

func TestUDPActorPublishesDatagrams(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	es := eventstream.NewEventStream()
	datagrams := make(chan domain.DatagramReceived, 1)
	es.Subscribe(func(evt any) {
		if d, ok := evt.(domain.DatagramReceived); ok {
			datagrams <- d
		}
	})

	socket := &fakeSocket{incoming: make(chan []byte, 1)}
	props := actor.PropsFromProducer(func() actor.Actor { return NewUDPActor(socket, es, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.True(result.(domain.ActorHealthResponse).Healthy)

	socket.incoming <- []byte("SMA")
	select {
	case d := <-datagrams:
		assert.Equal([]byte("SMA"), d.Data)
		assert.Equal(netip.MustParseAddr("192.168.1.60"), d.Src)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not published")
	}

	context.Stop(pid)
	time.Sleep(100 * time.Millisecond)
	as.Shutdown()
}
