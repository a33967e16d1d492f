package hostdispatch

import (
	"context"
	"math/big"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cryptobyte3/raiden/capability"
	"github.com/cryptobyte3/raiden/channel"
	"github.com/cryptobyte3/raiden/mediatedtransfer"
	"github.com/cryptobyte3/raiden/mediator"
	"github.com/cryptobyte3/raiden/route"
	"github.com/cryptobyte3/raiden/transfer"
	"github.com/cryptobyte3/raiden/transport"
)

type fakeSigner struct{}

func (fakeSigner) Sign(msg []byte) ([]byte, error) { return append([]byte{}, msg...), nil }

type fakeDatagram struct {
	mu    sync.Mutex
	sends int
}

func (f *fakeDatagram) Start() error   { return nil }
func (f *fakeDatagram) Stop() error    { return nil }
func (f *fakeDatagram) StopAccepting() {}
func (f *fakeDatagram) Started() bool  { return true }
func (f *fakeDatagram) Send(common.Address, capability.Endpoint, []byte) error {
	f.mu.Lock()
	f.sends++
	f.mu.Unlock()
	return nil
}
func (f *fakeDatagram) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

type fakeDiscovery struct{}

func (fakeDiscovery) Get(addr common.Address) (capability.Endpoint, error) {
	return capability.Endpoint{Host: "127.0.0.1", Port: 1}, nil
}

type fakeChain struct {
	mu   sync.Mutex
	sent []interface{}
}

func (f *fakeChain) Dispatch(ctx context.Context, event interface{}) error {
	f.mu.Lock()
	f.sent = append(f.sent, event)
	f.mu.Unlock()
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	outcomes []transfer.Event
}

func (f *fakeSink) OnOutcome(ev transfer.Event) {
	f.mu.Lock()
	f.outcomes = append(f.outcomes, ev)
	f.mu.Unlock()
}

func testConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.RetryInterval = time.Hour
	cfg.NatKeepaliveTimeout = time.Hour
	cfg.NatInvitationTimeout = time.Hour
	return cfg
}

func newTestHost(t *testing.T, channels mediator.ChannelMap, chain capability.ChainClient, sink Sink) (*Host, *fakeDatagram) {
	t.Helper()
	fakeTransport := &fakeDatagram{}
	tp := transport.New(testConfig(), common.HexToAddress("0x01"), fakeSigner{}, fakeDiscovery{}, fakeTransport, nil, Decode)
	t.Cleanup(func() { _ = tp.StopAndWait() })

	rng := rand.New(rand.NewSource(1))
	h := New(common.HexToAddress("0x01"), channels, tp, chain, sink, rng)
	return h, fakeTransport
}

func newOpenChannel(id common.Hash, ourAddr, partnerAddr common.Address, ourDeposit, partnerDeposit int64) *channel.NettingChannelState {
	return &channel.NettingChannelState{
		Identifier:    id,
		TokenAddress:  common.HexToAddress("0xtoken"),
		SettleTimeout: 100,
		RevealTimeout: 10,
		State:         channel.StateOpened,
		OurState:      channel.NewEndState(ourAddr, big.NewInt(ourDeposit)),
		PartnerState:  channel.NewEndState(partnerAddr, big.NewInt(partnerDeposit)),
	}
}

func TestHostApplyInitMediatorDispatchesWireSend(t *testing.T) {
	ourAddr := common.HexToAddress("0x01")
	payerAddr := common.HexToAddress("0x02")
	payeeAddr := common.HexToAddress("0x03")

	payerChannelID := common.HexToHash("0xaa")
	payeeChannelID := common.HexToHash("0xbb")

	channels := mediator.ChannelMap{
		payerChannelID: newOpenChannel(payerChannelID, ourAddr, payerAddr, 100, 100),
		payeeChannelID: newOpenChannel(payeeChannelID, ourAddr, payeeAddr, 100, 100),
	}

	chain := &fakeChain{}
	sink := &fakeSink{}
	h, fakeTransport := newTestHost(t, channels, chain, sink)

	secrethash := common.HexToHash("0xsecret")
	init := &transfer.InitMediator{
		OurAddress: ourAddr,
		FromTransfer: &mediatedtransfer.LockedTransferSignedState{
			BalanceProof: &mediatedtransfer.BalanceProofState{
				ChannelIdentifier: payerChannelID,
				Sender:            payerAddr,
				Nonce:             1,
				TransferredAmount: big.NewInt(0),
			},
			Lock:              &mediatedtransfer.Lock{Amount: big.NewInt(10), Expiration: 50, SecretHash: secrethash},
			PaymentIdentifier: 1,
			Initiator:         payerAddr,
			Target:            payeeAddr,
			Token:             common.HexToAddress("0xtoken"),
		},
		Routes:      &route.RoutesState{Routes: []*route.State{{ChannelIdentifier: payeeChannelID, NodeAddress: payeeAddr}}},
		FromRoute:   &route.State{ChannelIdentifier: payerChannelID, NodeAddress: payerAddr},
		BlockNumber: 1,
	}

	require.NoError(t, h.Apply(context.Background(), init))

	// The new destination's health supervisor sends one keepalive ping and the
	// queue transmits the SendMediatedTransfer once; with hour-long retry and
	// keepalive spacing nothing else reaches the wire during the test.
	require.Eventually(t, func() bool {
		return fakeTransport.sendCount() >= 2
	}, time.Second, 5*time.Millisecond, "the keepalive ping and the SendMediatedTransfer event must reach the wire")

	// Replaying the same InitMediator (same secrethash) must be a silent no-op.
	before := fakeTransport.sendCount()
	require.NoError(t, h.Apply(context.Background(), init))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, before, fakeTransport.sendCount(), "a replayed state change must not re-dispatch")
}

func TestHostApplyBlockIteratesTrackedMediations(t *testing.T) {
	ourAddr := common.HexToAddress("0x01")
	h, _ := newTestHost(t, mediator.ChannelMap{}, &fakeChain{}, &fakeSink{})

	secrethash := common.HexToHash("0x1")
	h.states[secrethash] = mediatedtransfer.NewMediatorTransferState(secrethash)

	require.NoError(t, h.Apply(context.Background(), &transfer.Block{BlockNumber: 5}))
	require.Equal(t, int64(5), h.currentBlock())
	_ = ourAddr
}

func TestHostDispatchOneRoutesContractEventsToChain(t *testing.T) {
	chain := &fakeChain{}
	h, _ := newTestHost(t, mediator.ChannelMap{}, chain, &fakeSink{})

	ev := &transfer.ContractSendSecretReveal{Secret: common.HexToHash("0x1"), Expiration: 50}
	require.NoError(t, h.dispatchOne(context.Background(), ev))
	require.Len(t, chain.sent, 1)
}

func TestHostDispatchOneRoutesOutcomeEventsToSink(t *testing.T) {
	sink := &fakeSink{}
	h, _ := newTestHost(t, mediator.ChannelMap{}, &fakeChain{}, sink)

	ev := &transfer.EventUnlockSuccess{PaymentIdentifier: 1, SecretHash: common.HexToHash("0x1")}
	require.NoError(t, h.dispatchOne(context.Background(), ev))
	require.Len(t, sink.outcomes, 1)
}

func TestHostMatchUnlockFindsTrackedMediationByBalanceProof(t *testing.T) {
	h, _ := newTestHost(t, mediator.ChannelMap{}, &fakeChain{}, &fakeSink{})

	secrethash := common.HexToHash("0x1")
	payerAddr := common.HexToAddress("0x02")
	channelID := common.HexToHash("0xaa")

	state := mediatedtransfer.NewMediatorTransferState(secrethash)
	payerTransfer := &mediatedtransfer.LockedTransferSignedState{
		BalanceProof: &mediatedtransfer.BalanceProofState{Sender: payerAddr, ChannelIdentifier: channelID},
		Lock:         &mediatedtransfer.Lock{SecretHash: secrethash},
	}
	payeeTransfer := &mediatedtransfer.LockedTransferUnsignedState{Lock: &mediatedtransfer.Lock{SecretHash: secrethash}}
	pair := mediatedtransfer.NewMediationPairState(payerTransfer, common.HexToAddress("0x03"), payeeTransfer)
	state.TransfersPair = append(state.TransfersPair, pair)
	h.states[secrethash] = state

	e := &transfer.ReceiveUnlock{
		MessageIdentifier: 1,
		BalanceProof:      &mediatedtransfer.BalanceProofState{Sender: payerAddr, ChannelIdentifier: channelID},
	}

	got, ok := h.matchUnlock(e)
	require.True(t, ok)
	require.Equal(t, secrethash, got)

	_, ok = h.matchUnlock(&transfer.ReceiveUnlock{
		BalanceProof: &mediatedtransfer.BalanceProofState{Sender: common.HexToAddress("0x99"), ChannelIdentifier: channelID},
	})
	require.False(t, ok)
}
