// Package token validates one-time action tokens.
//
// Tokens are JWTs signed by an external issuer with an ed25519 key. The
// validator only needs the public half. Each token carries the actor it is
// bound to, the action kind it authorizes, and a single-use nonce (jti);
// consumption is recorded in a NonceStore so replays are rejected for the
// remainder of the validity window.
package token

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"scoreboard/core"
)

// DefaultValidity is the fixed token lifetime from issuance.
const DefaultValidity = 5 * time.Minute

// Claims captures the validated contents of an action token.
type Claims struct {
	Actor    core.ActorID
	Action   core.ActionKind
	Nonce    string
	IssuedAt time.Time
	Expires  time.Time
}

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	Actor  string `json:"actor_id"`
	Action string `json:"action"`
}

// Validator verifies action tokens and consumes their nonces.
type Validator struct {
	key    ed25519.PublicKey
	issuer string
	nonces NonceStore
	now    func() time.Time
}

// NewValidator builds a Validator. issuer is matched against the token's iss
// claim; now defaults to time.Now when nil.
func NewValidator(key ed25519.PublicKey, issuer string, nonces NonceStore, now func() time.Time) (*Validator, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("token public key must be %d bytes", ed25519.PublicKeySize)
	}
	if nonces == nil {
		return nil, errors.New("nonce store is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{key: key, issuer: issuer, nonces: nonces, now: now}, nil
}

// Validate checks the token against actor, rejecting on malformed signature,
// expiry, actor mismatch, unknown action kind, or an already-consumed nonce.
// On success the nonce is marked used for the rest of its validity window.
func (v *Validator) Validate(ctx context.Context, raw string, actor core.ActorID) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, core.NewTokenError(core.TokenMalformed, errors.New("empty token"))
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, core.NewTokenError(core.TokenExpired, err)
		}
		return Claims{}, core.NewTokenError(core.TokenMalformed, err)
	}
	if v.issuer != "" && parsed.Issuer != v.issuer {
		return Claims{}, core.NewTokenError(core.TokenMalformed, fmt.Errorf("unexpected issuer %q", parsed.Issuer))
	}
	if core.ActorID(parsed.Actor) != actor {
		return Claims{}, core.NewTokenError(core.TokenActorMismatch, nil)
	}
	kind := core.ActionKind(parsed.Action)
	if !core.KnownActionKind(kind) {
		return Claims{}, core.NewTokenError(core.TokenUnknownAction, fmt.Errorf("action %q", parsed.Action))
	}
	nonce := parsed.ID
	if err := core.ValidateNonce(nonce); err != nil {
		return Claims{}, core.NewTokenError(core.TokenMalformed, err)
	}

	claims := Claims{
		Actor:  actor,
		Action: kind,
		Nonce:  nonce,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	claims.Expires = parsed.ExpiresAt.Time

	// Mark the nonce consumed for the remainder of the validity window. After
	// expiry the "expired" and "already used" rejections are indistinguishable,
	// which keeps the nonce set bounded.
	ttl := claims.Expires.Sub(v.now())
	if ttl <= 0 {
		return Claims{}, core.NewTokenError(core.TokenExpired, nil)
	}
	first, err := v.nonces.MarkUsed(ctx, nonce, ttl)
	if err != nil {
		return Claims{}, core.NewPersistenceError(fmt.Errorf("mark nonce used: %w", err))
	}
	if !first {
		return Claims{}, core.NewTokenError(core.TokenAlreadyUsed, nil)
	}
	return claims, nil
}

// Signer issues action tokens. The production issuer lives outside this
// service; Signer exists for tests, the demo server, and local tooling.
type Signer struct {
	key      ed25519.PrivateKey
	issuer   string
	validity time.Duration
	now      func() time.Time
}

func NewSigner(key ed25519.PrivateKey, issuer string, validity time.Duration) *Signer {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Signer{key: key, issuer: issuer, validity: validity, now: time.Now}
}

// Issue signs a token binding actor to one action kind with a fresh nonce.
func (s *Signer) Issue(actor core.ActorID, kind core.ActionKind, nonce string) (string, error) {
	now := s.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.validity)),
		},
		Actor:  string(actor),
		Action: string(kind),
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
}
