package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreEmpty(t *testing.T) {
	m := NewMemoryStore()

	nodes, err := m.ReadAllNodes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nodes)

	_, err = m.LatestStats(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreApplyReconciliation(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	err := m.ApplyReconciliation(ctx, []NodeRecord{
		{Pubkey: "B", Authority: "auth2", URI: "uri2"},
		{Pubkey: "A", Authority: "auth1", URI: "uri1"},
	}, nil, 2)
	require.NoError(t, err)

	nodes, err := m.ReadAllNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	// reads come back ordered by pubkey
	assert.Equal(t, "A", nodes[0].Pubkey)
	assert.Equal(t, "B", nodes[1].Pubkey)

	snap, err := m.LatestStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.TotalNodes)

	// update A, delete B
	err = m.ApplyReconciliation(ctx, []NodeRecord{
		{Pubkey: "A", Authority: "auth1", URI: "uri1-new"},
	}, []string{"B"}, 1)
	require.NoError(t, err)

	nodes, err = m.ReadAllNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "uri1-new", nodes[0].URI)

	snap, err = m.LatestStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.TotalNodes)
}

func TestMemoryStoreStatsHistoryIsAppendOnly(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.ApplyReconciliation(ctx, nil, nil, 0))
	require.NoError(t, m.ApplyReconciliation(ctx, []NodeRecord{{Pubkey: "A", Authority: "a", URI: "u"}}, nil, 1))

	history := m.StatsHistory()
	require.Len(t, history, 2)
	assert.EqualValues(t, 0, history[0].TotalNodes)
	assert.EqualValues(t, 1, history[1].TotalNodes)
	assert.Less(t, history[0].ID, history[1].ID)
}
