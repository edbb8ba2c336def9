package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RoleClaim is the private claim carrying the caller's role.
const RoleClaim = "role"

var (
	ErrTokenMalformed = errors.New("auth: token malformed")
	ErrTokenRole      = errors.New("auth: role claim mismatch")
)

// TokenPolicy describes the admin tokens the service mints and accepts.
// Only HS256 is supported; tokens signed with any other algorithm, or
// carrying no expiry, are refused before claims are looked at.
type TokenPolicy struct {
	Issuer   string
	Audience string
	Skew     time.Duration
	Role     string
}

// Issue signs a token for subject with the policy's role claim.
func (p TokenPolicy) Issue(secret []byte, subject string, now time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: signing secret not configured")
	}
	if ttl <= 0 {
		return "", errors.New("auth: token ttl must be positive")
	}
	b := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		NotBefore(now.Add(-p.Skew)).
		Expiration(now.Add(ttl))
	if p.Role != "" {
		b = b.Claim(RoleClaim, p.Role)
	}
	if p.Issuer != "" {
		b = b.Issuer(p.Issuer)
	}
	if p.Audience != "" {
		b = b.Audience([]string{p.Audience})
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Verify checks the signature and registered claims of raw at now and
// returns the parsed token. A role mismatch is reported as ErrTokenRole so
// callers can tell an authenticated non-admin from a bad token.
func (p TokenPolicy) Verify(secret []byte, raw string, now time.Time) (jwt.Token, error) {
	if err := requireHS256(raw); err != nil {
		return nil, err
	}
	tok, err := jwt.ParseString(raw, jwt.WithKey(jwa.HS256, secret), jwt.WithValidate(false))
	if err != nil {
		return nil, err
	}
	if tok.Expiration().IsZero() {
		return nil, fmt.Errorf("%w: no expiry", ErrTokenMalformed)
	}
	opts := []jwt.ValidateOption{jwt.WithClock(jwt.ClockFunc(func() time.Time { return now }))}
	if p.Skew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(p.Skew))
	}
	if p.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.Issuer))
	}
	if p.Audience != "" {
		opts = append(opts, jwt.WithAudience(p.Audience))
	}
	if err := jwt.Validate(tok, opts...); err != nil {
		return nil, err
	}
	if p.Role != "" {
		if role, _ := tok.Get(RoleClaim); role != p.Role {
			return nil, ErrTokenRole
		}
	}
	return tok, nil
}

// requireHS256 inspects the JWS headers before any key is applied so that
// "none" and asymmetric algorithms never reach signature verification.
func requireHS256(raw string) error {
	msg, err := jws.ParseString(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return fmt.Errorf("%w: expected one signature, got %d", ErrTokenMalformed, len(sigs))
	}
	headers := sigs[0].ProtectedHeaders()
	if headers == nil {
		return fmt.Errorf("%w: missing protected headers", ErrTokenMalformed)
	}
	if alg := headers.Algorithm(); alg != jwa.HS256 {
		return fmt.Errorf("%w: algorithm %q not accepted", ErrTokenMalformed, alg)
	}
	return nil
}
