package mewe

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenName = "access-token"
	csrfTokenName   = "csrf-token"
)

// jwtExpiry decodes the exp claim of a JWT without verifying the signature.
// The access token is issued by the upstream; we only need its lifetime.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// tokenExpired reports whether the access-token cookie needs refreshing.
// A missing token counts as expired so the first request after a cold start
// always re-identifies. Both the cookie's recorded expiry and the embedded
// JWT exp claim are honored; whichever is known triggers an early refresh.
func (c *Client) tokenExpired(now time.Time) bool {
	ck := c.jar.Get(c.domain, accessTokenName)
	if ck == nil || ck.Value == "" {
		return true
	}

	deadline := now.Add(c.refreshEarly)
	if !ck.Expires.IsZero() && deadline.After(ck.Expires) {
		return true
	}
	if exp, ok := jwtExpiry(ck.Value); ok && deadline.After(exp) {
		return true
	}
	return false
}
