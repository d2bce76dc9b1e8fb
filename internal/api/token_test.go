package api

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/carecache/internal/persist"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "p-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestStoredToken_Lifecycle(t *testing.T) {
	store := persist.NewMemory()
	tokens := NewStoredToken(store, nil)
	ctx := context.Background()

	token, err := tokens.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, tokens.Save(ctx, " opaque "))
	token, err = tokens.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque", token)

	raw, err := store.Get(ctx, "auth:access_token")
	require.NoError(t, err)
	assert.Equal(t, "opaque", string(raw))

	require.NoError(t, tokens.Clear(ctx))
	token, err = tokens.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestStoredToken_DropsExpiredJWT(t *testing.T) {
	store := persist.NewMemory()
	tokens := NewStoredToken(store, nil)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tokens.SetClock(func() time.Time { return now })
	ctx := context.Background()

	valid := signedToken(t, now.Add(time.Hour))
	require.NoError(t, tokens.Save(ctx, valid))
	token, err := tokens.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, valid, token)

	require.NoError(t, tokens.Save(ctx, signedToken(t, now.Add(-time.Minute))))
	token, err = tokens.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, 0, store.Len())
}

func TestStaticToken(t *testing.T) {
	var src TokenSource = StaticToken("fixed")
	token, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed", token)
	assert.NoError(t, src.Clear(context.Background()))
}
