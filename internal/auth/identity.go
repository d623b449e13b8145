package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"roomsync/pkg/types"
)

// Claims mirrors the access-token payload issued by the platform backend.
type Claims struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

// Identity is the current user as seen by the engine. Canvas self-echo
// suppression and the join-flow membership check both key off UserID.
type Identity struct {
	UserID string
	Name   string
}

// IdentityFromToken extracts the current user from an access token. The
// engine is not the token issuer and holds no signing secret, so the parse
// is unverified; the backend re-validates the token on every call.
func IdentityFromToken(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if !types.IsValidUserID(userID) {
		return nil, ErrInvalidToken
	}

	name := claims.Nickname
	if name == "" {
		name = userID
	}

	return &Identity{UserID: userID, Name: name}, nil
}
