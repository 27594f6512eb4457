// ABOUTME: Tests for the SQLite audit store.
// ABOUTME: Covers append defaults, filtering, ordering, and limit clamping.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendGeneratesDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := &Invocation{Subject: "agent-1", Tool: "read_file", Outcome: OutcomeOK}
	require.NoError(t, s.AppendInvocation(ctx, inv))

	assert.NotEmpty(t, inv.ID)
	assert.False(t, inv.CreatedAt.IsZero())

	got, err := s.ListInvocations(ctx, InvocationFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "agent-1", got[0].Subject)
	assert.Equal(t, "read_file", got[0].Tool)
	assert.Equal(t, OutcomeOK, got[0].Outcome)
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []*Invocation{
		{Subject: "agent-1", Tool: "read_file", Outcome: OutcomeOK},
		{Subject: "agent-1", Tool: "run_command", Outcome: OutcomeError, Reason: "command not allowed"},
		{Subject: "agent-2", Tool: "read_file", Outcome: OutcomeOK},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendInvocation(ctx, e))
	}

	subject := "agent-1"
	got, err := s.ListInvocations(ctx, InvocationFilter{Subject: &subject})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	outcome := OutcomeError
	got, err = s.ListInvocations(ctx, InvocationFilter{Outcome: &outcome})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "command not allowed", got[0].Reason)

	tool := "read_file"
	got, err = s.ListInvocations(ctx, InvocationFilter{Subject: &subject, Tool: &tool})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, tool := range []string{"first", "second", "third"} {
		require.NoError(t, s.AppendInvocation(ctx, &Invocation{
			Subject:   "agent-1",
			Tool:      tool,
			Outcome:   OutcomeOK,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.ListInvocations(ctx, InvocationFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "third", got[0].Tool)
	assert.Equal(t, "first", got[2].Tool)
}

func TestListLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendInvocation(ctx, &Invocation{
			Subject: "agent-1", Tool: "read_file", Outcome: OutcomeOK,
		}))
	}

	got, err := s.ListInvocations(ctx, InvocationFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
