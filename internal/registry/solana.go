package registry

import (
	"context"
	"errors"
	"fmt"
	"net"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("registry")

// Account layout constants. Program accounts are Anchor accounts: an 8-byte
// type discriminator followed by the borsh-encoded payload.
const (
	discriminatorSize = 8

	// NetworkStats is discriminator + u64 total.
	statsAccountSize = discriminatorSize + 8

	// NodeDevice is discriminator + 32-byte authority + length-prefixed uri,
	// so anything larger than this holds at least an empty uri.
	minNodeAccountSize = discriminatorSize + 32 + 4
)

// nodeDeviceAccount mirrors the on-chain NodeDevice payload.
type nodeDeviceAccount struct {
	Authority solana.PublicKey
	URI       string
}

// networkStatsAccount mirrors the on-chain NetworkStats payload. The program
// maintains it on chain; we decode it only to cross-check the locally derived
// count in logs.
type networkStatsAccount struct {
	TotalNodes uint64
}

var _ Client = (*SolanaClient)(nil)

// SolanaClient lists node accounts owned by the registry program via the
// getProgramAccounts RPC method.
type SolanaClient struct {
	rpc     *rpc.Client
	program solana.PublicKey
}

func NewSolanaClient(endpoint string, programID string) (*SolanaClient, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("parsing program id: %w", err)
	}
	return &SolanaClient{
		rpc:     rpc.New(endpoint),
		program: program,
	}, nil
}

// Healthcheck verifies the RPC endpoint responds and returns the current slot.
func (c *SolanaClient) Healthcheck(ctx context.Context) (uint64, error) {
	slot, err := c.rpc.GetSlot(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return 0, classify(err)
	}
	return slot, nil
}

func (c *SolanaClient) FetchAll(ctx context.Context) ([]Node, error) {
	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, c.program, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, classify(err)
	}

	nodes := make([]Node, 0, len(out))
	for _, keyed := range out {
		if keyed.Account == nil || keyed.Account.Data == nil {
			return nil, fmt.Errorf("%w: account %s has no data", ErrMalformed, keyed.Pubkey)
		}
		data := keyed.Account.Data.GetBinary()

		switch {
		case len(data) == statsAccountSize:
			stats, err := decodeNetworkStats(data)
			if err != nil {
				log.Warnf("skipping undecodable stats account %s: %v", keyed.Pubkey, err)
				continue
			}
			log.Debugf("on-chain network stats report %d nodes", stats.TotalNodes)
		case len(data) > minNodeAccountSize:
			device, err := decodeNodeDevice(data)
			if err != nil {
				log.Warnf("skipping undecodable node account %s: %v", keyed.Pubkey, err)
				continue
			}
			nodes = append(nodes, Node{
				Pubkey:    keyed.Pubkey.String(),
				Authority: device.Authority.String(),
				URI:       device.URI,
			})
		default:
			log.Debugf("skipping unknown account %s of %d bytes", keyed.Pubkey, len(data))
		}
	}

	return nodes, nil
}

func decodeNodeDevice(data []byte) (*nodeDeviceAccount, error) {
	var device nodeDeviceAccount
	dec := bin.NewBorshDecoder(data[discriminatorSize:])
	if err := dec.Decode(&device); err != nil {
		return nil, fmt.Errorf("decoding node device: %w", err)
	}
	return &device, nil
}

func decodeNetworkStats(data []byte) (*networkStatsAccount, error) {
	var stats networkStatsAccount
	dec := bin.NewBorshDecoder(data[discriminatorSize:])
	if err := dec.Decode(&stats); err != nil {
		return nil, fmt.Errorf("decoding network stats: %w", err)
	}
	return &stats, nil
}

// classify folds transport errors into the registry taxonomy.
func classify(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
