package provision

import "context"

var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// WithActorContext sets the actor reported on activity events for operations
// run with the returned context. It takes precedence over WithActor.
func WithActorContext(ctx context.Context, actor ActorRef) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext finds the actor set by WithActorContext.
func ActorFromContext(ctx context.Context) (ActorRef, bool) {
	if ctx == nil {
		return ActorRef{}, false
	}
	actor, ok := ctx.Value(actorCtxKey).(ActorRef)
	return actor, ok && actor != (ActorRef{})
}
