// Package tools holds helpers shared by the development commands.
package tools

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DevToken returns an HS256 access token for userID shaped like the ones the
// API accepts: audience "authenticated", one hour of validity. The secret is
// read from AUTH_JWT_SECRET.
func DevToken(userID string) (string, error) {
	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		return "", errors.New("AUTH_JWT_SECRET must be set")
	}
	return SignToken([]byte(secret), userID, time.Hour)
}

func SignToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"aud":  "authenticated",
		"role": "authenticated",
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
