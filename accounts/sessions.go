package accounts

import (
	"errors"
	"fmt"
	"time"

	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const (
	SessionCookie = "formsync_session"
	sessionIssuer = "formsync"
)

// ErrInvalidSession is returned for a missing, malformed, forged or expired session token
var ErrInvalidSession = errors.New("invalid session")

// Sessions issues and verifies HS256-signed session tokens
type Sessions struct {
	signer jose.Signer
	key    []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a session issuer keyed by secret
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	key := []byte(secret)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("failed to create session signer: %w", err)
	}

	return &Sessions{
		signer: signer,
		key:    key,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL is how long issued sessions last
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed token for userID and its expiry
func (s *Sessions) Issue(userID string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)

	claims := jwt.Claims{
		Issuer:   sessionIssuer,
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(expires),
	}

	raw, err := jwt.Signed(s.signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return raw, expires, nil
}

// Parse verifies a token and returns the user ID it was issued for
func (s *Sessions) Parse(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalidSession
	}

	tok, err := jwt.ParseSigned(raw)
	if err != nil {
		return "", ErrInvalidSession
	}
	if len(tok.Headers) != 1 || tok.Headers[0].Algorithm != string(jose.HS256) {
		return "", ErrInvalidSession
	}

	var claims jwt.Claims
	if err := tok.Claims(s.key, &claims); err != nil {
		return "", ErrInvalidSession
	}

	if err := claims.ValidateWithLeeway(jwt.Expected{Issuer: sessionIssuer, Time: s.now()}, 0); err != nil {
		return "", ErrInvalidSession
	}
	if claims.Subject == "" {
		return "", ErrInvalidSession
	}

	return claims.Subject, nil
}
