package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/errors"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("journal", []byte("secret"), time.Hour)

	tok, err := tokens.Sign(Identity{UserID: "u1", AccountID: "a1"})
	require.NoError(t, err)

	id, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", AccountID: "a1"}, id)
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens("journal", []byte("secret"), time.Hour)
	tok, err := tokens.Sign(Identity{UserID: "u1"})
	require.NoError(t, err)

	other := NewTokens("other", []byte("secret"), time.Hour)
	_, err = other.Parse(tok)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	wrongKey := NewTokens("journal", []byte("nope"), time.Hour)
	_, err = wrongKey.Parse(tok)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	expired := NewTokens("journal", []byte("secret"), time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Parse(tok)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	_, err = tokens.Parse("not-a-token")
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	_, err = tokens.Sign(Identity{})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := NewContext(context.Background(), Identity{UserID: "u1", AccountID: "a1"})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "a1", id.AccountID)
	assert.Equal(t, "a2", id.WithAccount("a2").AccountID)

	assert.True(t, errors.Is(Identity{UserID: "u1"}.Validate(), errors.ErrValidation))
	assert.NoError(t, id.Validate())
}
