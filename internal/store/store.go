package store

import (
	"context"
	"errors"
)

// NodeRecord is the local mirror of one registry-reported node account.
type NodeRecord struct {
	Pubkey    string
	Authority string
	URI       string
}

// StatsSnapshot is one committed row of the network_stats history.
type StatsSnapshot struct {
	ID         int64
	TotalNodes int64
}

var (
	ErrNotFound    = errors.New("record not found")
	ErrUnavailable = errors.New("store unavailable")
	ErrConstraint  = errors.New("store constraint violation")
	ErrConflict    = errors.New("store conflict")
)

// Store persists the node mirror and its derived stats. Both tables are
// written together: ApplyReconciliation is all-or-nothing, so readers only
// ever observe the state as of a fully committed cycle.
type Store interface {
	// ReadAllNodes returns a snapshot of the nodes table ordered by pubkey.
	ReadAllNodes(ctx context.Context) ([]NodeRecord, error)

	// ApplyReconciliation applies all upserts and deletes and appends a
	// network_stats row carrying newTotal, in a single transaction.
	ApplyReconciliation(ctx context.Context, upserts []NodeRecord, deletes []string, newTotal int64) error

	// LatestStats returns the most recently committed stats snapshot, or
	// ErrNotFound before the first reconciliation has committed.
	LatestStats(ctx context.Context) (*StatsSnapshot, error)
}
