package auth

import (
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/google/uuid"
)

// Actor is the authenticated caller handed from the HTTP layer to services.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// ActorFromClaims converts verified token claims into an Actor.
func ActorFromClaims(claims *AccessTokenClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}
}
