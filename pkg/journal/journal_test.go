package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBeginFinishGet(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }

	r, err := s.BeginRun(ctx, "wave", "nats://localhost:4222", 8, 3300)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "wave", got.Program)
	assert.Empty(t, got.Outcome)
	assert.True(t, got.FinishedAt.IsZero())
	assert.Zero(t, got.Duration())

	s.now = func() time.Time { return start.Add(3300 * time.Millisecond) }
	require.NoError(t, s.FinishRun(ctx, r.ID, OutcomeSendFailed, 120, errors.New("publish: connection closed")))

	got, err = s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSendFailed, got.Outcome)
	assert.Equal(t, 120, got.Frames)
	assert.Equal(t, "publish: connection closed", got.Error)
	assert.Equal(t, 3300*time.Millisecond, got.Duration())
}

func TestList_NewestFirst(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		r, err := s.BeginRun(ctx, name, "sim", 1, 10)
		require.NoError(t, err)
		require.NoError(t, s.FinishRun(ctx, r.ID, OutcomeCompleted, 10, nil))
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].Program)
	assert.Equal(t, "second", runs[1].Program)
	assert.Empty(t, runs[0].Error)
}

func TestFinishRun_Unknown(t *testing.T) {
	s := tempStore(t)
	err := s.FinishRun(context.Background(), "nope", OutcomeCompleted, 0, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
