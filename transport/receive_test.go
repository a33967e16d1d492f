package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cryptobyte3/raiden/capability"
)

// recordingDatagram captures every payload handed to Send, so tests can
// inspect what actually went on the wire.
type recordingDatagram struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (r *recordingDatagram) Start() error   { return nil }
func (r *recordingDatagram) Stop() error    { return nil }
func (r *recordingDatagram) StopAccepting() {}
func (r *recordingDatagram) Started() bool  { return true }
func (r *recordingDatagram) Send(_ common.Address, _ capability.Endpoint, data []byte) error {
	r.mu.Lock()
	r.payloads = append(r.payloads, append([]byte{}, data...))
	r.mu.Unlock()
	return nil
}

// tagged returns the captured payloads carrying the given leading tag byte.
func (r *recordingDatagram) tagged(tag byte) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched [][]byte
	for _, p := range r.payloads {
		if len(p) > 0 && p[0] == tag {
			matched = append(matched, p)
		}
	}
	return matched
}

// testAppMessage is a minimal capability.ApplicationMessage whose encoding
// is sender || token || body, matched by decodeTestMessage.
type testAppMessage struct {
	sender common.Address
	token  common.Address
	body   []byte
}

func (m *testAppMessage) Sender() common.Address { return m.sender }
func (m *testAppMessage) Token() common.Address  { return m.token }
func (m *testAppMessage) Encode() ([]byte, error) {
	buf := make([]byte, 0, 2*common.AddressLength+len(m.body))
	buf = append(buf, m.sender.Bytes()...)
	buf = append(buf, m.token.Bytes()...)
	return append(buf, m.body...), nil
}

func decodeTestMessage(payload []byte) (capability.ApplicationMessage, error) {
	if len(payload) < 2*common.AddressLength {
		return nil, fmt.Errorf("short test message")
	}
	msg := &testAppMessage{body: append([]byte{}, payload[2*common.AddressLength:]...)}
	copy(msg.sender[:], payload[:common.AddressLength])
	copy(msg.token[:], payload[common.AddressLength:2*common.AddressLength])
	return msg, nil
}

type recordingHost struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *recordingHost) OnMessage(context.Context, capability.ApplicationMessage, common.Hash) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.err
}

func (h *recordingHost) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func testReceiveConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryInterval = time.Hour
	cfg.NatKeepaliveRetries = 1
	cfg.NatKeepaliveTimeout = time.Hour
	cfg.NatInvitationTimeout = time.Hour
	return cfg
}

func newReceiveTestTransport(t *testing.T, ourAddress common.Address, host capability.MessageHost, peers ...common.Address) (*Transport, *recordingDatagram) {
	t.Helper()
	answers := make(map[common.Address]capability.Endpoint)
	for i, p := range peers {
		answers[p] = capability.Endpoint{Host: "127.0.0.1", Port: uint16(1000 + i)}
	}
	rec := &recordingDatagram{}
	tp := New(testReceiveConfig(), ourAddress, testSigner{}, &fakeDiscovery{answers: answers}, rec, host, decodeTestMessage)
	t.Cleanup(func() { _ = tp.StopAndWait() })
	return tp, rec
}

// One full round trip: A sends, B receives and acks, A's future resolves
// true. The bytes flow through each transport's real receive pipeline.
func TestSendReceiveAckRoundTrip(t *testing.T) {
	addrA := common.HexToAddress("0x0a")
	addrB := common.HexToAddress("0x0b")

	hostB := &recordingHost{}
	tpA, recA := newReceiveTestTransport(t, addrA, &recordingHost{}, addrB)
	tpB, recB := newReceiveTestTransport(t, addrB, hostB, addrA)

	msg := &testAppMessage{sender: addrA, token: common.HexToAddress("0x70"), body: []byte("mediated transfer")}
	fut, err := tpA.SendAsync(addrB, msg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(recA.tagged(tagApplication)) > 0
	}, time.Second, 2*time.Millisecond)

	onWire := recA.tagged(tagApplication)[0]
	require.NoError(t, tpB.Receive(context.Background(), onWire))
	require.Equal(t, 1, hostB.callCount())

	acks := recB.tagged(tagAck)
	require.Len(t, acks, 1)
	require.NoError(t, tpA.Receive(context.Background(), acks[0]))

	select {
	case ok := <-fut:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("future never resolved after the ack came back")
	}

	// The ack doubles as evidence of liveness.
	require.Equal(t, NodeReachable, tpA.NodeState(addrB))
}

// A duplicate inbound message re-emits the cached ack and never reaches the
// host a second time.
func TestDuplicateInboundReemitsCachedAck(t *testing.T) {
	ourAddress := common.HexToAddress("0x01")
	peer := common.HexToAddress("0x02")
	host := &recordingHost{}
	tp, rec := newReceiveTestTransport(t, ourAddress, host, peer)

	msg := &testAppMessage{sender: peer, body: []byte("payload")}
	encoded, err := msg.Encode()
	require.NoError(t, err)
	framed := append([]byte{tagApplication}, encoded...)

	require.NoError(t, tp.Receive(context.Background(), framed))
	require.Equal(t, 1, host.callCount())
	require.Len(t, rec.tagged(tagAck), 1)

	require.NoError(t, tp.Receive(context.Background(), framed))
	require.Equal(t, 1, host.callCount(), "a duplicate must not reach the host again")
	acks := rec.tagged(tagAck)
	require.Len(t, acks, 2)
	require.Equal(t, acks[0], acks[1], "the cached ack must be re-emitted byte for byte")
}

// A message the host rejects with a protocol-violation sentinel is dropped
// without an ack: the peer's retries are its own problem.
func TestProtocolViolationDroppedWithoutAck(t *testing.T) {
	ourAddress := common.HexToAddress("0x01")
	peer := common.HexToAddress("0x02")
	host := &recordingHost{err: capability.ErrInvalidNonce}
	tp, rec := newReceiveTestTransport(t, ourAddress, host, peer)

	msg := &testAppMessage{sender: peer, body: []byte("bad nonce")}
	encoded, err := msg.Encode()
	require.NoError(t, err)
	framed := append([]byte{tagApplication}, encoded...)

	require.NoError(t, tp.Receive(context.Background(), framed))
	require.Equal(t, 1, host.callCount())
	require.Empty(t, rec.tagged(tagAck))

	// Not acked means not cached either: the retry reaches the host again.
	require.NoError(t, tp.Receive(context.Background(), framed))
	require.Equal(t, 2, host.callCount())
}

func TestReceiveRejectsOversizeDatagram(t *testing.T) {
	ourAddress := common.HexToAddress("0x01")
	tp, _ := newReceiveTestTransport(t, ourAddress, &recordingHost{})

	raw := make([]byte, tp.cfg.UDPMaxMessageSize+1)
	require.ErrorIs(t, tp.Receive(context.Background(), raw), errOversizeDatagram)
}

// While a queue to D is deep in backoff, an inbound message from D is still
// acked within the same Receive call: acks never wait behind retries.
func TestAckBypassesBusyQueue(t *testing.T) {
	ourAddress := common.HexToAddress("0x01")
	peer := common.HexToAddress("0x02")
	host := &recordingHost{}
	tp, rec := newReceiveTestTransport(t, ourAddress, host, peer)

	outbound := &testAppMessage{sender: ourAddress, body: []byte("never acked")}
	_, err := tp.SendAsync(peer, outbound)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.tagged(tagApplication)) > 0
	}, time.Second, 2*time.Millisecond, "the queued message must hit the wire once before backing off")

	inbound := &testAppMessage{sender: peer, body: []byte("from peer")}
	encoded, err := inbound.Encode()
	require.NoError(t, err)
	require.NoError(t, tp.Receive(context.Background(), append([]byte{tagApplication}, encoded...)))

	require.Len(t, rec.tagged(tagAck), 1, "the ack must go out despite the backed-off queue")
}

// An inbound ping is acknowledged immediately, without involving the host
// or any send queue.
func TestReceivePingAcksImmediately(t *testing.T) {
	ourAddress := common.HexToAddress("0x01")
	peer := common.HexToAddress("0x02")
	host := &recordingHost{}
	tp, rec := newReceiveTestTransport(t, ourAddress, host, peer)

	msg := encodePing(peer, 7)
	sig, err := testSigner{}.Sign(msg)
	require.NoError(t, err)
	signed := append(msg, sig...)

	require.NoError(t, tp.Receive(context.Background(), append([]byte{tagPing}, signed...)))
	require.Zero(t, host.callCount())

	acks := rec.tagged(tagAck)
	require.Len(t, acks, 1)
	decoded, err := decodeAck(acks[0])
	require.NoError(t, err)
	require.Equal(t, ourAddress, decoded.sender)
	require.Equal(t, inboundEchohash(signed, ourAddress), decoded.echohash)
}
