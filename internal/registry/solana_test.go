package registry

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nodeDeviceBytes builds a raw NodeDevice account: 8-byte discriminator,
// 32-byte authority, u32 little-endian uri length, uri bytes.
func nodeDeviceBytes(authority solana.PublicKey, uri string) []byte {
	data := make([]byte, 0, discriminatorSize+32+4+len(uri))
	data = append(data, make([]byte, discriminatorSize)...)
	data = append(data, authority.Bytes()...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(uri)))
	data = append(data, uri...)
	return data
}

func networkStatsBytes(total uint64) []byte {
	data := make([]byte, statsAccountSize)
	binary.LittleEndian.PutUint64(data[discriminatorSize:], total)
	return data
}

func TestDecodeNodeDevice(t *testing.T) {
	authority := solana.MustPublicKeyFromBase58("3je23jfTQJBkYTYhLCBjH2F9thAcaY9g7M7RYR92uhWu")

	device, err := decodeNodeDevice(nodeDeviceBytes(authority, "https://node.example.com:8443"))
	require.NoError(t, err)
	assert.Equal(t, authority, device.Authority)
	assert.Equal(t, "https://node.example.com:8443", device.URI)
}

func TestDecodeNodeDeviceEmptyURI(t *testing.T) {
	authority := solana.MustPublicKeyFromBase58("3je23jfTQJBkYTYhLCBjH2F9thAcaY9g7M7RYR92uhWu")

	device, err := decodeNodeDevice(nodeDeviceBytes(authority, ""))
	require.NoError(t, err)
	assert.Equal(t, "", device.URI)
}

func TestDecodeNodeDeviceTruncated(t *testing.T) {
	authority := solana.MustPublicKeyFromBase58("3je23jfTQJBkYTYhLCBjH2F9thAcaY9g7M7RYR92uhWu")

	data := nodeDeviceBytes(authority, "https://node.example.com")
	_, err := decodeNodeDevice(data[:len(data)-4])
	assert.Error(t, err)
}

func TestDecodeNetworkStats(t *testing.T) {
	stats, err := decodeNetworkStats(networkStatsBytes(42))
	require.NoError(t, err)
	assert.EqualValues(t, 42, stats.TotalNodes)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, classify(errors.New("connection refused")), ErrUnavailable)
}
