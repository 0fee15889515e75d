package store

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// flakyStore fails LoadAccount with a persistence error while down is set.
type flakyStore struct {
	*MemoryStore
	down  bool
	calls int
}

func (f *flakyStore) LoadAccount(ctx context.Context, id string) (models.Account, error) {
	f.calls++
	if f.down {
		return models.Account{}, errors.NewPersistenceError("load account", stderrors.New("connection refused"))
	}
	return f.MemoryStore.LoadAccount(ctx, id)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), down: true}
	require.NoError(t, flaky.SaveAccount(ctx, sampleAccount("a1")))

	port := Guarded(flaky, BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})
	g := port.(*guardedPort)
	clock := baseTime
	g.breaker.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		_, err := port.LoadAccount(ctx, "a1")
		require.Error(t, err)
	}
	assert.Equal(t, BreakerOpen, g.breaker.State())

	_, err := port.LoadAccount(ctx, "a1")
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.ErrorIs(t, err, errors.ErrPersistence)
	assert.Equal(t, 3, flaky.calls, "open breaker must not reach the store")

	flaky.down = false
	clock = clock.Add(2 * time.Minute)
	acct, err := port.LoadAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", acct.ID)
	assert.Equal(t, BreakerClosed, g.breaker.State())

	stats := g.breaker.Stats()
	assert.Equal(t, int64(3), stats.Failures)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestBreakerIgnoresDomainErrors(t *testing.T) {
	ctx := context.Background()
	port := Guarded(NewMemoryStore(), BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := port.LoadAccount(ctx, "missing")
		assert.ErrorIs(t, err, errors.ErrNotFound)
	}
	assert.Equal(t, BreakerClosed, port.(*guardedPort).breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), down: true}
	port := Guarded(flaky, BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	g := port.(*guardedPort)
	clock := baseTime
	g.breaker.now = func() time.Time { return clock }

	_, _ = port.LoadAccount(ctx, "a1")
	require.Equal(t, BreakerOpen, g.breaker.State())

	clock = clock.Add(2 * time.Second)
	_, err := port.LoadAccount(ctx, "a1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBreakerOpen, "the probe reaches the store")
	assert.Equal(t, BreakerOpen, g.breaker.State())
}

func TestGuardedDisabled(t *testing.T) {
	mem := NewMemoryStore()
	assert.Same(t, Port(mem), Guarded(mem, BreakerConfig{}))
}
