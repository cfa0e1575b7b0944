package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ektropy/realm-authz/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockFlusher struct {
	mock.Mock
}

func (m *MockFlusher) Flush(ctx context.Context, realmID string) error {
	args := m.Called(ctx, realmID)
	return args.Error(0)
}

type countingFlusher struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingFlusher() *countingFlusher {
	return &countingFlusher{counts: make(map[string]int)}
}

func (f *countingFlusher) Flush(ctx context.Context, realmID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[realmID]++
	return nil
}

func TestRequestWriteIsIdempotent(t *testing.T) {
	flusher := newCountingFlusher()
	c := NewCoordinator(flusher, zaptest.NewLogger(t))

	s := c.Begin()
	assert.Equal(t, StateClean, s.State())

	for i := 0; i < 10; i++ {
		require.NoError(t, c.RequestWrite(s, "r1"))
	}
	assert.Equal(t, StateDirty, s.State())

	require.NoError(t, c.Commit(context.Background(), s))
	assert.Equal(t, 1, flusher.counts["r1"], "many write requests, exactly one flush")
	assert.Equal(t, StateFlushed, s.State())
}

func TestCommitCleanSessionIsNoOp(t *testing.T) {
	flusher := newCountingFlusher()
	c := NewCoordinator(flusher, zaptest.NewLogger(t))

	s := c.Begin()
	require.NoError(t, c.Commit(context.Background(), s))
	assert.Empty(t, flusher.counts)
}

func TestCommitFlushesEachDirtyRealmOnce(t *testing.T) {
	flusher := newCountingFlusher()
	c := NewCoordinator(flusher, zaptest.NewLogger(t))

	s := c.Begin()
	require.NoError(t, c.RequestWrite(s, "r1"))
	require.NoError(t, c.RequestWrite(s, "r2"))
	require.NoError(t, c.RequestWrite(s, "r1"))

	require.NoError(t, c.Commit(context.Background(), s))
	assert.Equal(t, 1, flusher.counts["r1"])
	assert.Equal(t, 1, flusher.counts["r2"])

	// a second commit without new writes must not flush again
	require.NoError(t, c.Commit(context.Background(), s))
	assert.Equal(t, 1, flusher.counts["r1"])
}

func TestSessionsDoNotShareBookkeeping(t *testing.T) {
	flusher := newCountingFlusher()
	c := NewCoordinator(flusher, zaptest.NewLogger(t))

	s1 := c.Begin()
	s2 := c.Begin()
	require.NotEqual(t, s1.ID(), s2.ID())

	require.NoError(t, c.RequestWrite(s1, "r1"))
	assert.Equal(t, StateDirty, s1.State())
	assert.Equal(t, StateClean, s2.State())

	require.NoError(t, c.Commit(context.Background(), s2))
	assert.Empty(t, flusher.counts, "committing the clean session flushes nothing")

	require.NoError(t, c.Commit(context.Background(), s1))
	assert.Equal(t, 1, flusher.counts["r1"])
}

func TestFlushFailurePoisonsSession(t *testing.T) {
	flusher := &MockFlusher{}
	flushErr := errors.New("disk full")
	flusher.On("Flush", mock.Anything, "r1").Return(flushErr)

	c := NewCoordinator(flusher, zaptest.NewLogger(t))
	s := c.Begin()
	require.NoError(t, c.RequestWrite(s, "r1"))

	err := c.Commit(context.Background(), s)
	require.Error(t, err)

	var commitErr *models.CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, s.ID(), commitErr.SessionID)
	assert.ErrorIs(t, err, flushErr)
	assert.True(t, s.Poisoned())

	// the session is dead: neither new writes nor retried commits succeed
	err = c.RequestWrite(s, "r1")
	require.ErrorAs(t, err, &commitErr)

	err = c.Commit(context.Background(), s)
	require.ErrorAs(t, err, &commitErr)

	flusher.AssertNumberOfCalls(t, "Flush", 1)
}

func TestRollbackDiscardsWriteIntents(t *testing.T) {
	flusher := newCountingFlusher()
	c := NewCoordinator(flusher, zaptest.NewLogger(t))

	s := c.Begin()
	require.NoError(t, c.RequestWrite(s, "r1"))

	c.Rollback(s)
	assert.Equal(t, StateClean, s.State())

	require.NoError(t, c.Commit(context.Background(), s))
	assert.Empty(t, flusher.counts)
}

func TestFlusherFunc(t *testing.T) {
	var got string
	f := FlusherFunc(func(ctx context.Context, realmID string) error {
		got = realmID
		return nil
	})
	require.NoError(t, f.Flush(context.Background(), "r1"))
	assert.Equal(t, "r1", got)
}
