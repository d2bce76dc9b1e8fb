package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/gmsas95/carecache/internal/cache"
	"github.com/gmsas95/carecache/internal/persist"
)

// TokenNamespace scopes the auth token within the persistent store
const TokenNamespace = "auth"

const tokenKey = "access_token"

// TokenSource supplies the bearer token for requests and forgets it when
// the backend rejects it
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// StoredToken keeps the access token in the persistent store. Expired JWTs
// are dropped on read; opaque tokens are returned as stored.
type StoredToken struct {
	store  persist.Store
	clock  cache.Clock
	logger *zap.Logger
}

func NewStoredToken(store persist.Store, logger *zap.Logger) *StoredToken {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoredToken{
		store:  persist.Scoped(store, TokenNamespace),
		clock:  time.Now,
		logger: logger,
	}
}

func (t *StoredToken) SetClock(clock cache.Clock) {
	t.clock = clock
}

// Save stores token, replacing any previous one
func (t *StoredToken) Save(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return t.Clear(ctx)
	}
	return t.store.Set(ctx, tokenKey, []byte(token))
}

func (t *StoredToken) Token(ctx context.Context) (string, error) {
	raw, err := t.store.Get(ctx, tokenKey)
	if errors.Is(err, persist.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	token := string(raw)
	if expired(token, t.clock()) {
		t.logger.Info("Stored auth token expired")
		if err := t.Clear(ctx); err != nil {
			return "", err
		}
		return "", nil
	}
	return token, nil
}

func (t *StoredToken) Clear(ctx context.Context) error {
	return t.store.Remove(ctx, tokenKey)
}

// expired reads the exp claim without verifying the signature.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

// StaticToken is a fixed token that cannot be cleared
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

func (StaticToken) Clear(context.Context) error {
	return nil
}
