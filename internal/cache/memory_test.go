package cache

import (
	"context"
	"testing"
	"time"

	"sentiment-backend/internal/core/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache(time.Hour, 100)
	c.now = func() time.Time { return now }

	key := Key(uuid.New(), "some text")
	pred := types.Prediction{
		Label:      types.Positive,
		Confidence: 0.91,
		Scores:     map[types.Label]float64{types.Positive: 0.91},
	}

	t.Run("MissBeforePut", func(t *testing.T) {
		_, err := c.Get(context.Background(), key)
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("HitAfterPut", func(t *testing.T) {
		require.NoError(t, c.Put(context.Background(), key, pred))

		got, err := c.Get(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, pred, got)
	})

	t.Run("ExpiresAfterTTL", func(t *testing.T) {
		now = now.Add(time.Hour + time.Second)

		_, err := c.Get(context.Background(), key)
		assert.ErrorIs(t, err, ErrMiss)
	})
}

func TestMemoryCacheSweep(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache(time.Hour, 2)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	pred := types.Prediction{Label: types.Neutral, Confidence: 1}

	require.NoError(t, c.Put(ctx, "a", pred))
	require.NoError(t, c.Put(ctx, "b", pred))

	// Everything is live, so hitting the cap resets the map.
	require.NoError(t, c.Put(ctx, "c", pred))

	_, errA := c.Get(ctx, "a")
	_, errC := c.Get(ctx, "c")
	assert.ErrorIs(t, errA, ErrMiss)
	assert.NoError(t, errC)
}

func TestKeyDependsOnModelAndText(t *testing.T) {
	m1, m2 := uuid.New(), uuid.New()

	assert.Equal(t, Key(m1, "text"), Key(m1, "text"))
	assert.NotEqual(t, Key(m1, "text"), Key(m2, "text"))
	assert.NotEqual(t, Key(m1, "text"), Key(m1, "other"))
}
