package fixtures

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// signingKey only has to be self-consistent; the client never verifies
// signatures, it just reads claims.
var signingKey = []byte("fixture-signing-key")

// Token mints an access token for the given user.
func Token(userID, nickname string) string {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"nickname": nickname,
		"sub":      userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("signing fixture token: %v", err))
	}
	return signed
}

// UserIDFromToken reads the user id claim without verifying the
// signature, mirroring how the client treats tokens.
func UserIDFromToken(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return "", err
	}
	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, nil
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("token carries no user id")
}
