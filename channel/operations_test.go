package channel_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cryptobyte3/raiden/channel"
	"github.com/cryptobyte3/raiden/mediatedtransfer"
)

func newTestChannel(ourDeposit, partnerDeposit int64) *channel.NettingChannelState {
	return &channel.NettingChannelState{
		Identifier:    common.HexToHash("0x01"),
		TokenAddress:  common.HexToAddress("0xaa"),
		SettleTimeout: 100,
		RevealTimeout: 10,
		State:         channel.StateOpened,
		OurState:      channel.NewEndState(common.HexToAddress("0x01"), big.NewInt(ourDeposit)),
		PartnerState:  channel.NewEndState(common.HexToAddress("0x02"), big.NewInt(partnerDeposit)),
	}
}

func TestGetDistributable(t *testing.T) {
	c := newTestChannel(100, 0)
	require.Equal(t, big.NewInt(100), channel.GetDistributable(c.OurState))

	c.OurState.TransferredAmount = big.NewInt(30)
	require.Equal(t, big.NewInt(70), channel.GetDistributable(c.OurState))

	c.OurState.SecrethashesToLockedLocks[common.HexToHash("0x1")] = &mediatedtransfer.Lock{
		Amount: big.NewInt(20), Expiration: 10, SecretHash: common.HexToHash("0x1"),
	}
	require.Equal(t, big.NewInt(50), channel.GetDistributable(c.OurState))
}

func TestHandleReceiveLockedTransferValidatesNonceAndCapacity(t *testing.T) {
	c := newTestChannel(100, 100)
	secrethash := common.HexToHash("0xbeef")

	lt := &mediatedtransfer.LockedTransferSignedState{
		BalanceProof: &mediatedtransfer.BalanceProofState{
			ChannelIdentifier: c.Identifier,
			Sender:            c.PartnerState.Address,
			Nonce:             1,
			TransferredAmount: big.NewInt(0),
		},
		Lock: &mediatedtransfer.Lock{Amount: big.NewInt(50), Expiration: 10, SecretHash: secrethash},
	}

	require.True(t, channel.HandleReceiveLockedTransfer(c, lt))
	require.Equal(t, uint64(1), c.PartnerState.Nonce)
	require.Contains(t, c.PartnerState.SecrethashesToLockedLocks, secrethash)

	// A replayed (non-increasing nonce) transfer must be rejected.
	require.False(t, channel.HandleReceiveLockedTransfer(c, lt))

	// An amount exceeding distributable capacity must be rejected.
	over := &mediatedtransfer.LockedTransferSignedState{
		BalanceProof: &mediatedtransfer.BalanceProofState{
			Nonce: 2, TransferredAmount: big.NewInt(0),
		},
		Lock: &mediatedtransfer.Lock{Amount: big.NewInt(1000), Expiration: 10, SecretHash: common.HexToHash("0xc0ffee")},
	}
	require.False(t, channel.HandleReceiveLockedTransfer(c, over))
}

func TestSendUnlockMovesLockAndBumpsTransferred(t *testing.T) {
	c := newTestChannel(100, 0)
	secret := common.HexToHash("0xsecret")
	secrethash := common.HexToHash("0xsecrethash")

	_, _ = channel.SendLockedTransfer(c, common.HexToAddress("0x10"), common.HexToAddress("0x20"),
		big.NewInt(40), 1, 1, 10, secrethash)
	require.Contains(t, c.OurState.SecrethashesToLockedLocks, secrethash)

	ev := channel.SendUnlock(c, 2, 1, secret, secrethash)
	require.NotNil(t, ev)
	require.NotContains(t, c.OurState.SecrethashesToLockedLocks, secrethash)
	require.NotContains(t, c.OurState.SecrethashesToUnlockedLocks, secrethash)
	require.Equal(t, big.NewInt(40), c.OurState.TransferredAmount)
	require.Equal(t, secret, ev.Secret)

	// The consumed lock no longer counts against capacity: only the bumped
	// transferred amount does.
	require.Equal(t, big.NewInt(60), channel.GetDistributable(c.OurState))
}

func TestSendUnlockConsumesAnAlreadyRegisteredLock(t *testing.T) {
	c := newTestChannel(100, 0)
	secret := common.HexToHash("0x5ec")
	secrethash := common.HexToHash("0x5ec4a54")

	_, _ = channel.SendLockedTransfer(c, common.HexToAddress("0x10"), common.HexToAddress("0x20"),
		big.NewInt(40), 1, 1, 10, secrethash)
	channel.RegisterSecret(c, secret, secrethash)
	require.Contains(t, c.OurState.SecrethashesToUnlockedLocks, secrethash)

	ev := channel.SendUnlock(c, 2, 1, secret, secrethash)
	require.NotNil(t, ev)
	require.NotContains(t, c.OurState.SecrethashesToUnlockedLocks, secrethash)
	require.Equal(t, big.NewInt(40), c.OurState.TransferredAmount)
}

func TestHandleUnlockFindsARegisteredLock(t *testing.T) {
	c := newTestChannel(100, 100)
	secret := common.HexToHash("0x5ec")
	secrethash := common.HexToHash("0x5ec4a54")

	lt := &mediatedtransfer.LockedTransferSignedState{
		BalanceProof: &mediatedtransfer.BalanceProofState{
			ChannelIdentifier: c.Identifier,
			Sender:            c.PartnerState.Address,
			Nonce:             1,
			TransferredAmount: big.NewInt(0),
		},
		Lock: &mediatedtransfer.Lock{Amount: big.NewInt(25), Expiration: 10, SecretHash: secrethash},
	}
	require.True(t, channel.HandleReceiveLockedTransfer(c, lt))

	// The secret was revealed before the unlock arrived, moving the lock out
	// of the locked book; the unlock must still find and consume it.
	channel.RegisterSecret(c, secret, secrethash)

	bp := &mediatedtransfer.BalanceProofState{
		ChannelIdentifier: c.Identifier,
		Sender:            c.PartnerState.Address,
		Nonce:             2,
		TransferredAmount: big.NewInt(25),
	}
	require.True(t, channel.HandleUnlock(c, secrethash, bp))
	require.NotContains(t, c.PartnerState.SecrethashesToUnlockedLocks, secrethash)
	require.Equal(t, big.NewInt(25), c.PartnerState.TransferredAmount)
	require.Equal(t, uint64(2), c.PartnerState.Nonce)
}

func TestHandleRefundTransferRejectsMismatchedLock(t *testing.T) {
	c := newTestChannel(100, 100)
	original := &mediatedtransfer.Lock{Amount: big.NewInt(40), Expiration: 10, SecretHash: common.HexToHash("0x1")}

	mismatched := &mediatedtransfer.LockedTransferSignedState{
		BalanceProof: &mediatedtransfer.BalanceProofState{Nonce: 1, TransferredAmount: big.NewInt(0)},
		Lock:         &mediatedtransfer.Lock{Amount: big.NewInt(41), Expiration: 10, SecretHash: common.HexToHash("0x1")},
	}
	require.False(t, channel.HandleRefundTransfer(c, original, mismatched))

	matched := &mediatedtransfer.LockedTransferSignedState{
		BalanceProof: &mediatedtransfer.BalanceProofState{Nonce: 1, TransferredAmount: big.NewInt(0)},
		Lock:         &mediatedtransfer.Lock{Amount: big.NewInt(40), Expiration: 10, SecretHash: common.HexToHash("0x1")},
	}
	require.True(t, channel.HandleRefundTransfer(c, original, matched))
}

func TestHandleReceiveLockExpiredRequiresPastExpiration(t *testing.T) {
	c := newTestChannel(100, 100)
	secrethash := common.HexToHash("0x1")
	c.PartnerState.SecrethashesToLockedLocks[secrethash] = &mediatedtransfer.Lock{
		Amount: big.NewInt(10), Expiration: 50, SecretHash: secrethash,
	}

	require.False(t, channel.HandleReceiveLockExpired(c, secrethash, 50))
	require.True(t, channel.HandleReceiveLockExpired(c, secrethash, 51))
	require.NotContains(t, c.PartnerState.SecrethashesToLockedLocks, secrethash)
}
