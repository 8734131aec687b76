package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// AccessTokenPayload is what a caller supplies when minting a token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims is the JWT body issued by the identity service.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token missing user id")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("token carries invalid role %q", c.Role)
	}
	if c.Subject != "" && c.Subject != c.UserID.String() {
		return errors.New("token subject does not match user id")
	}
	return nil
}
