// Package identity supplies the acting user and selected account to the
// engine. Both are opaque tokens echoed on persisted rows.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trade-journal/internal/errors"
)

// Identity is the acting user and the account a command targets.
type Identity struct {
	UserID    string
	AccountID string
}

// WithAccount returns a copy of id targeting accountID.
func (id Identity) WithAccount(accountID string) Identity {
	id.AccountID = accountID
	return id
}

// Validate checks that both tokens are present.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.UserID) == "" {
		return errors.NewValidationError("user_id", "", "is required")
	}
	if strings.TrimSpace(id.AccountID) == "" {
		return errors.NewValidationError("account_id", "", "is required")
	}
	return nil
}

type contextKey struct{}

// NewContext stores id in ctx.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Claims are the JWT claims carried by API tokens. Subject is the user.
type Claims struct {
	AccountID string `json:"account_id,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	issuer string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token service.
func NewTokens(issuer string, secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{issuer: issuer, secret: secret, ttl: ttl, now: time.Now}
}

// Sign issues a token for the identity. An empty AccountID leaves the claim
// out so callers pick the account per request.
func (t *Tokens) Sign(id Identity) (string, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", errors.NewValidationError("user_id", "", "is required")
	}
	now := t.now().UTC()
	claims := Claims{
		AccountID: id.AccountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse verifies a token and returns its identity.
func (t *Tokens) Parse(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, err.Error())
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "invalid token")
	}
	if claims.Issuer != t.issuer {
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "invalid issuer")
	}
	if claims.Subject == "" {
		return Identity{}, errors.Wrap(errors.ErrUnauthorized, "invalid subject")
	}
	return Identity{UserID: claims.Subject, AccountID: claims.AccountID}, nil
}
