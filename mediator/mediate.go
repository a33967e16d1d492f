package mediator

import (
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/channel"
	"github.com/cryptobyte3/raiden/mediatedtransfer"
	"github.com/cryptobyte3/raiden/route"
	"github.com/cryptobyte3/raiden/transfer"
)

// ChannelMap looks channels up by identifier, the "channels" argument of the
// transition function signature.
type ChannelMap map[common.Hash]*channel.NettingChannelState

// IsChannelUsable reports whether c can carry a new lock of the given
// amount expiring lockTimeout blocks from now: the channel must be open,
// its timeouts must bracket the lock, and the amount must fit both the
// distributable balance and the pending-transfer cap.
func IsChannelUsable(c *channel.NettingChannelState, amount *big.Int, lockTimeout int64) bool {
	if c == nil {
		return false
	}
	if lockTimeout <= 0 {
		return false
	}
	if channel.GetStatus(c) != channel.StateOpened {
		return false
	}
	if c.SettleTimeout < lockTimeout {
		return false
	}
	if c.RevealTimeout >= lockTimeout {
		return false
	}
	if channel.GetNumberOfPendingTransfers(c.OurState) >= MaximumPendingTransfers {
		return false
	}
	if amount.Cmp(channel.GetDistributable(c.OurState)) > 0 {
		return false
	}
	if !channel.IsValidAmount(c.OurState, amount) {
		return false
	}
	return true
}

// isSafeToWait reports whether more than revealTimeout blocks remain before
// lockExpiration, i.e. whether an off-chain balance proof can still be
// waited for.
func isSafeToWait(lockExpiration, revealTimeout, block int64) bool {
	return lockExpiration-block > revealTimeout
}

// inDangerZone reports whether block sits inside the danger zone
// (lockExpiration - revealTimeout, lockExpiration], the range in which the
// on-chain reveal is the only remaining way to enforce the lock. The left
// edge is exclusive: with exactly revealTimeout blocks left the off-chain
// unlock is no longer attempted but the on-chain reveal waits one more
// block.
func inDangerZone(lockExpiration, revealTimeout, block int64) bool {
	return lockExpiration-block < revealTimeout
}

// filterUsedRoutes removes any route whose channel identifier already
// appears as a payer or payee channel within transfersPair.
//
// The filter deletes by channel identifier regardless of which side (payer
// or payee) used it: a route whose channel already served as a payee
// channel earlier in the chain is excluded too, even though reusing it as a
// payer channel elsewhere would not itself be unsafe. No supported topology
// traverses one channel in both directions, so the extra caution costs
// nothing.
func filterUsedRoutes(transfersPair []*mediatedtransfer.MediationPairState, routes []*route.State) []*route.State {
	used := make(map[common.Hash]bool)
	for _, pair := range transfersPair {
		used[pair.PayerTransfer.BalanceProof.ChannelIdentifier] = true
		if pair.PayeeTransfer != nil {
			used[pair.PayeeTransfer.BalanceProof.ChannelIdentifier] = true
		}
	}
	filtered := make([]*route.State, 0, len(routes))
	for _, r := range routes {
		if !used[r.ChannelIdentifier] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// getPayerChannel returns the channel the given pair's payer transfer rode
// in on.
func getPayerChannel(channels ChannelMap, pair *mediatedtransfer.MediationPairState) *channel.NettingChannelState {
	return channels[pair.PayerTransfer.BalanceProof.ChannelIdentifier]
}

// getPayeeChannel returns the channel the given pair's payee transfer is
// being sent on.
func getPayeeChannel(channels ChannelMap, pair *mediatedtransfer.MediationPairState) *channel.NettingChannelState {
	if pair.PayeeTransfer == nil {
		return nil
	}
	return channels[pair.PayeeTransfer.BalanceProof.ChannelIdentifier]
}

// nextChannelFromRoutes returns the first route whose channel is usable for
// (amount, lockTimeout), or nil if none qualify.
func nextChannelFromRoutes(channels ChannelMap, routes []*route.State, amount *big.Int, lockTimeout int64) (*route.State, *channel.NettingChannelState) {
	for _, r := range routes {
		c := channels[r.ChannelIdentifier]
		if IsChannelUsable(c, amount, lockTimeout) {
			return r, c
		}
	}
	return nil, nil
}

// mediateTransfer tries to extend the mediation one hop further using
// possibleRoutes, or failing that refunds the payer. It is called both from
// InitMediator and whenever a downstream refund forces a retry.
func mediateTransfer(
	channels ChannelMap,
	rng *rand.Rand,
	state *mediatedtransfer.MediatorTransferState,
	possibleRoutes []*route.State,
	payerRoute *route.State,
	payerTransfer *mediatedtransfer.LockedTransferSignedState,
	block int64,
) []transfer.Event {
	usableRoutes := filterUsedRoutes(state.TransfersPair, possibleRoutes)
	lockTimeout := payerTransfer.Lock.Expiration - block

	chosenRoute, chosenChannel := nextChannelFromRoutes(channels, usableRoutes, payerTransfer.Lock.Amount, lockTimeout)
	if chosenChannel != nil {
		messageIdentifier := nextMessageIdentifier(rng)
		payeeTransfer, sendEvent := channel.SendLockedTransfer(
			chosenChannel,
			payerTransfer.Initiator,
			payerTransfer.Target,
			payerTransfer.Lock.Amount,
			messageIdentifier,
			payerTransfer.PaymentIdentifier,
			payerTransfer.Lock.Expiration,
			payerTransfer.Lock.SecretHash,
		)
		pair := mediatedtransfer.NewMediationPairState(payerTransfer, chosenRoute.NodeAddress, payeeTransfer)
		state.TransfersPair = append(state.TransfersPair, pair)
		return []transfer.Event{sendEvent}
	}

	var refundChannel *channel.NettingChannelState
	if len(state.TransfersPair) > 0 {
		refundChannel = getPayerChannel(channels, state.TransfersPair[0])
	} else {
		refundChannel = channels[payerRoute.ChannelIdentifier]
	}

	if !IsChannelUsable(refundChannel, payerTransfer.Lock.Amount, lockTimeout) {
		return nil
	}

	messageIdentifier := nextMessageIdentifier(rng)
	_, refundEvent := channel.SendRefundTransfer(refundChannel, payerTransfer, messageIdentifier)
	return []transfer.Event{refundEvent}
}
