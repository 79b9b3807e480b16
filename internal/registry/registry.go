package registry

import (
	"context"
	"errors"
)

// Node is one registry-reported account: a base58 pubkey plus the mutable
// attributes the controlling authority set on it.
type Node struct {
	Pubkey    string
	Authority string
	URI       string
}

var (
	ErrUnavailable = errors.New("registry unavailable")
	ErrTimeout     = errors.New("registry timeout")
	ErrMalformed   = errors.New("registry malformed response")
)

// Client lists the full current set of registered nodes. Every fetch is an
// independent, possibly stale view of the registry; callers must not assume
// monotonic growth between fetches.
type Client interface {
	FetchAll(ctx context.Context) ([]Node, error)
}
