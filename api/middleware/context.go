package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/pkg/auth"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor stores the authenticated caller on ctx.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the caller seeded by Auth.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	if !ok || actor.UserID == uuid.Nil {
		return auth.Actor{}, false
	}
	return actor, true
}

func UserIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.UserRole {
	actor, _ := ActorFromContext(ctx)
	return actor.Role
}
