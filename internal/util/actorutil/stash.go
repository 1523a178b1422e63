package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash holds messages received while an actor is busy and replays them with their original sender.
type Stash struct {
	elems []stashedMessage
}

type stashedMessage struct {
	msg    any
	sender *actor.PID
}

func (s *Stash) Stash(ctx actor.Context, msg any) {
	s.elems = append(s.elems, stashedMessage{
		msg:    msg,
		sender: ctx.Sender(),
	})
}

func (s *Stash) Len() int {
	return len(s.elems)
}

func (s *Stash) UnstashAll(ctx actor.Context) {
	for _, elem := range s.elems {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
	}
	s.elems = nil
}

func (s *Stash) UnstashOldest(ctx actor.Context) {
	if len(s.elems) == 0 {
		return
	}
	first := s.elems[0]
	s.elems = s.elems[1:]
	ctx.RequestWithCustomSender(ctx.Self(), first.msg, first.sender)
}
