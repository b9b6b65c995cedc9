package evidence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionRunOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	gen := NewGenerator(store)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	gen.now = fixedClock(now.AddDate(0, 0, -10))
	_, err := gen.Generate(ctx, GenerateParams{Operation: OpRedactText, Method: "mask"})
	require.NoError(t, err)
	gen.now = fixedClock(now.AddDate(0, 0, -1))
	_, err = gen.Generate(ctx, GenerateParams{Operation: OpRedactText, Method: "mask"})
	require.NoError(t, err)

	r, err := NewRetention(store, 7)
	require.NoError(t, err)
	r.now = fixedClock(now)

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRetentionSchedule(t *testing.T) {
	store := newTestStore(t)
	r, err := NewRetention(store, 30)
	require.NoError(t, err)

	require.NoError(t, r.Schedule(""))
	require.NoError(t, r.Schedule("*/5 * * * *"))
	assert.Equal(t, 2, r.Entries())
	assert.Error(t, r.Schedule("not a cron spec"))

	r.Start()
	r.Stop()
}

func TestNewRetentionRejectsNonPositiveDays(t *testing.T) {
	_, err := NewRetention(nil, 0)
	assert.Error(t, err)
}
