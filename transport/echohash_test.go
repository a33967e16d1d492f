package transport

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestEchohashIsDeterministic(t *testing.T) {
	encoded := []byte("payload")
	addr := common.HexToAddress("0x01")

	require.Equal(t, outboundEchohash(encoded, addr), outboundEchohash(encoded, addr))
	require.Equal(t, inboundEchohash(encoded, addr), inboundEchohash(encoded, addr))
}

func TestOutboundAndInboundEchohashDiffer(t *testing.T) {
	encoded := []byte("payload")

	// Sent to addr vs received by ourAddress=addr hash different material
	// (receiver vs ourAddress are conceptually distinct roles) only when the
	// other party differs; verify the two helpers are not simply aliases by
	// using distinct addresses for each role.
	receiver := common.HexToAddress("0x02")
	ourAddress := common.HexToAddress("0x03")

	out := outboundEchohash(encoded, receiver)
	in := inboundEchohash(encoded, ourAddress)
	require.NotEqual(t, out, in)
}

func TestEchohashVariesWithInputs(t *testing.T) {
	addr := common.HexToAddress("0x01")
	other := common.HexToAddress("0x02")

	require.NotEqual(t, outboundEchohash([]byte("a"), addr), outboundEchohash([]byte("b"), addr))
	require.NotEqual(t, outboundEchohash([]byte("a"), addr), outboundEchohash([]byte("a"), other))
}
