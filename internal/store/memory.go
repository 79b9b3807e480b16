package store

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the node mirror in process memory. It honors the same
// atomicity contract as the Postgres store and backs local development runs
// and tests.
type MemoryStore struct {
	mtx   sync.RWMutex
	nodes map[string]NodeRecord
	stats []StatsSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: map[string]NodeRecord{},
	}
}

func (m *MemoryStore) ReadAllNodes(ctx context.Context) ([]NodeRecord, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	nodes := make([]NodeRecord, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Pubkey < nodes[j].Pubkey })
	return nodes, nil
}

func (m *MemoryStore) ApplyReconciliation(ctx context.Context, upserts []NodeRecord, deletes []string, newTotal int64) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, n := range upserts {
		m.nodes[n.Pubkey] = n
	}
	for _, pk := range deletes {
		delete(m.nodes, pk)
	}
	m.stats = append(m.stats, StatsSnapshot{
		ID:         int64(len(m.stats) + 1),
		TotalNodes: newTotal,
	})
	return nil
}

func (m *MemoryStore) LatestStats(ctx context.Context) (*StatsSnapshot, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	if len(m.stats) == 0 {
		return nil, ErrNotFound
	}
	snap := m.stats[len(m.stats)-1]
	return &snap, nil
}

// StatsHistory returns every committed snapshot, oldest first.
func (m *MemoryStore) StatsHistory() []StatsSnapshot {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	history := make([]StatsSnapshot, len(m.stats))
	copy(history, m.stats)
	return history
}
