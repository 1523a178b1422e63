package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates drives an actor through named states.
type ActorWithStates struct {
	Behavior actor.Behavior
	states   []string
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func (s *ActorWithStates) Become(state ActorState) {
	s.states = append(s.states[:0], state.Name())
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.states = append(s.states, state.Name())
	s.Behavior.BecomeStacked(state.Receive)
}

func (s *ActorWithStates) UnbecomeStacked() {
	if len(s.states) > 1 {
		s.states = s.states[:len(s.states)-1]
	}
	s.Behavior.UnbecomeStacked()
}

// StateName is the name of the active state, empty before the first Become.
func (s *ActorWithStates) StateName() string {
	if len(s.states) == 0 {
		return ""
	}
	return s.states[len(s.states)-1]
}
