package domain

import "time"

// TokenGraceWindow is the buffer before a token's stated expiry at which it
// is already treated as invalid, so a request never departs with a token that
// dies in flight.
const TokenGraceWindow = 5 * time.Minute

// AuthToken is a credential-derived session artifact. ExpiresAt is decoded
// from the token's own claims and is not independently verified.
type AuthToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedFor string    `json:"issued_for"`
	CachedAt  time.Time `json:"cached_at"`
}

// Valid reports whether the token is still usable at the given instant,
// applying the grace window.
func (t *AuthToken) Valid(now time.Time) bool {
	if t == nil || t.Token == "" {
		return false
	}
	return t.ExpiresAt.After(now.Add(TokenGraceWindow))
}
