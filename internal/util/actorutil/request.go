package actorutil

import (
	"github.com/berfenger/speedwire2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// ResponseTarget is the actor a response to req goes to: its explicit target, or the sender.
func ResponseTarget(ctx actor.Context, req domain.ActorRequest) *actor.PID {
	if pid := req.ResponseTarget(); pid != nil {
		return pid
	}
	return ctx.Sender()
}

// Reply answers req. Requests sent without a sender and without a target get no answer.
func Reply(ctx actor.Context, req domain.ActorRequest, resp domain.ActorResponse) {
	if pid := req.ResponseTarget(); pid != nil {
		ctx.Send(pid, resp)
		return
	}
	if ctx.Sender() != nil {
		ctx.Respond(resp)
	}
}
