package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

// Server answers HTTP requests by asking the master actor.
type Server struct {
	port        uint
	httpLog     bool
	askTimeout  time.Duration
	rootContext *actor.RootContext
	masterActor *actor.PID
}

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID) *Server {
	return &Server{
		port:        cfg.Port,
		httpLog:     cfg.HttpLog,
		askTimeout:  5 * time.Second,
		rootContext: rootContext,
		masterActor: masterActor,
	}
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID) *http.Server {
	s := newServer(cfg, rootContext, masterActor)
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * s.askTimeout,
	}
}

// ask sends msg to the master actor and waits for its answer.
func (s *Server) ask(msg any) (any, error) {
	return s.rootContext.RequestFuture(s.masterActor, msg, s.askTimeout).Result()
}
