package reconciler

import (
	"sort"

	"github.com/samber/lo"

	"github.com/aethernet/indexer/internal/registry"
	"github.com/aethernet/indexer/internal/store"
)

// Diff is the minimal mutation set bringing the stored mirror into agreement
// with a remote snapshot, plus the authoritative node count for the cycle.
type Diff struct {
	Upserts  []store.NodeRecord
	Deletes  []string
	NewTotal int64
}

func (d Diff) Empty() bool {
	return len(d.Upserts) == 0 && len(d.Deletes) == 0
}

// computeDiff compares the stored snapshot against the remote one, keyed by
// pubkey. Remote attribute values always win; NewTotal is the cardinality of
// the remote snapshot, never a recount of the edited table. Output ordering is
// deterministic (sorted by pubkey) so identical inputs produce identical diffs.
func computeDiff(stored []store.NodeRecord, remote []registry.Node) Diff {
	stale := make(map[string]store.NodeRecord, len(stored))
	for _, n := range stored {
		stale[n.Pubkey] = n
	}

	var d Diff
	d.NewTotal = int64(len(remote))

	for _, r := range remote {
		rec := store.NodeRecord{Pubkey: r.Pubkey, Authority: r.Authority, URI: r.URI}
		prev, ok := stale[r.Pubkey]
		if ok {
			delete(stale, r.Pubkey)
			if prev == rec {
				continue
			}
		}
		d.Upserts = append(d.Upserts, rec)
	}

	d.Deletes = lo.Keys(stale)

	sort.Slice(d.Upserts, func(i, j int) bool { return d.Upserts[i].Pubkey < d.Upserts[j].Pubkey })
	sort.Strings(d.Deletes)
	return d
}
