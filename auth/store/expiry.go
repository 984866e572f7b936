package store

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryFromJWT recovers an expiry timestamp from a JWT access token's exp
// claim. Token endpoints occasionally omit expires_in; when the access token
// itself is a JWT the claim is authoritative enough for cache decisions. The
// signature is deliberately not verified - the token is only introspected,
// never trusted. Returns the zero time when the token is not a parsable JWT
// or carries no exp claim.
func ExpiryFromJWT(accessToken string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
