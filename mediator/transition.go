package mediator

import (
	"math/rand"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/channel"
	"github.com/cryptobyte3/raiden/mediatedtransfer"
	"github.com/cryptobyte3/raiden/route"
	"github.com/cryptobyte3/raiden/transfer"
	"github.com/cryptobyte3/raiden/utils"
)

// Transition is the mediator's pure transition function: `(state, event,
// channels, rng, block) -> (state', events)`. It performs no I/O and is
// deterministic given rng's seed and sequence of draws.
func Transition(
	state *mediatedtransfer.MediatorTransferState,
	event transfer.StateChange,
	channels ChannelMap,
	rng *rand.Rand,
	block int64,
) (*mediatedtransfer.MediatorTransferState, []transfer.Event) {
	var newState *mediatedtransfer.MediatorTransferState
	var events []transfer.Event

	switch e := event.(type) {
	case *transfer.InitMediator:
		newState, events = handleInit(channels, rng, e, block)

	case *transfer.Block:
		if state == nil {
			return nil, nil
		}
		newState, events = handleBlock(channels, state, e.BlockNumber)

	case *transfer.ReceiveTransferRefund:
		if state == nil {
			return nil, nil
		}
		newState, events = handleRefundTransfer(channels, rng, state, e, block)

	case *transfer.ReceiveSecretReveal:
		if state == nil {
			return nil, nil
		}
		events = handleSecretReveal(channels, state, rng, e.Secret, e.Secrethash, e.Sender, false, block)
		newState = state

	case *transfer.ContractReceiveSecretReveal:
		if state == nil {
			return nil, nil
		}
		events = handleSecretReveal(channels, state, rng, e.Secret, e.Secrethash, common.Address{}, true, e.BlockNumber)
		newState = state

	case *transfer.ReceiveUnlock:
		if state == nil {
			return nil, nil
		}
		newState, events = handleUnlock(channels, state, e)

	case *transfer.ReceiveLockExpired:
		if state == nil {
			return nil, nil
		}
		handleLockExpired(channels, state, e, block)
		return nil, nil

	default:
		return state, nil
	}

	if newState != nil {
		sanityCheck(newState)
		newState = clearIfFinalized(newState)
	}

	return newState, events
}

// handleInit starts a fresh mediation: validate the incoming locked
// transfer against the upstream channel, then try to extend it one hop.
func handleInit(
	channels ChannelMap,
	rng *rand.Rand,
	e *transfer.InitMediator,
	block int64,
) (*mediatedtransfer.MediatorTransferState, []transfer.Event) {
	payerChannel := channels[e.FromRoute.ChannelIdentifier]
	if payerChannel == nil {
		log.Debugf("mediator: no channel for route %s, dropping InitMediator", utils.Pex(e.FromRoute.ChannelIdentifier))
		return nil, nil
	}
	if !channel.HandleReceiveLockedTransfer(payerChannel, e.FromTransfer) {
		log.Warnf("mediator: rejecting locked transfer on channel %s, secrethash %s",
			utils.Pex(payerChannel.Identifier), utils.Pex(e.FromTransfer.Lock.SecretHash))
		return nil, nil
	}

	state := mediatedtransfer.NewMediatorTransferState(e.FromTransfer.Lock.SecretHash)

	events := mediateTransfer(channels, rng, state, e.Routes.Routes, e.FromRoute, e.FromTransfer, block)
	return state, events
}

// handleBlock expires overdue pairs, decides whether the secret must go on
// chain, and purges the mediation once the first lock is safely past its
// confirmation threshold.
func handleBlock(channels ChannelMap, state *mediatedtransfer.MediatorTransferState, block int64) (*mediatedtransfer.MediatorTransferState, []transfer.Event) {
	var events []transfer.Event

	// A node that paid its payee before going offline can come back to find
	// the payer lock expired with the payee side already in a paid state;
	// only an unpaid side ever transitions to expired, and the paired
	// "payer expired implies payee expired" corollary is never asserted.
	for _, pair := range pendingTransferPairs(state.TransfersPair) {
		payerDone := stateTransferPaid[pair.PayerState] || pair.PayerState == mediatedtransfer.PayerExpired
		if block > pair.PayerTransfer.Lock.Expiration && !payerDone {
			pair.PayerState = mediatedtransfer.PayerExpired
			events = append(events, &transfer.EventUnlockClaimFailed{
				PaymentIdentifier: pair.PayerTransfer.PaymentIdentifier,
				SecretHash:        state.Secrethash,
				Reason:            "lock expired",
			})
		}
		payeeDone := stateTransferPaid[pair.PayeeState] || pair.PayeeState == mediatedtransfer.PayeeExpired
		if pair.PayeeTransfer != nil && block > pair.PayeeTransfer.Lock.Expiration && !payeeDone {
			pair.PayeeState = mediatedtransfer.PayeeExpired
			events = append(events, &transfer.EventUnlockFailed{
				PaymentIdentifier: pair.PayeeTransfer.PaymentIdentifier,
				SecretHash:        state.Secrethash,
				Reason:            "lock expired",
			})
		}
	}

	events = append(events, eventsForOnchainSecretReveal(channels, state, block)...)

	if len(state.TransfersPair) > 0 {
		first := state.TransfersPair[0]
		threshold := first.PayerTransfer.Lock.Expiration + DefaultNumberOfConfirmationsBlock
		if block > threshold {
			payeeChannel := getPayeeChannel(channels, first)
			if payeeChannel != nil {
				expiryEvents := channel.EventsForExpiredLock(payeeChannel, state.Secrethash)
				if len(expiryEvents) > 0 {
					return nil, expiryEvents
				}
			}
		}
	}

	return state, events
}

// handleRefundTransfer reacts to a downstream hop giving the transfer
// back: the refund must mirror the lock we extended to that hop
// (secrethash, amount, no later expiration) and validate against the
// channel its balance proof names, then the remaining routes are retried.
func handleRefundTransfer(
	channels ChannelMap,
	rng *rand.Rand,
	state *mediatedtransfer.MediatorTransferState,
	e *transfer.ReceiveTransferRefund,
	block int64,
) (*mediatedtransfer.MediatorTransferState, []transfer.Event) {
	if state.Secret != nil {
		return state, nil
	}
	if len(state.TransfersPair) == 0 {
		// A refund answers a transfer this node sent; with no pair there is
		// nothing it can be a refund of.
		return nil, nil
	}
	last := state.TransfersPair[len(state.TransfersPair)-1]

	refundChannel := channels[e.Transfer.BalanceProof.ChannelIdentifier]
	if refundChannel == nil || !channel.HandleRefundTransfer(refundChannel, last.PayeeTransfer.Lock, e.Transfer) {
		return nil, nil
	}

	payerRoute := &route.State{
		ChannelIdentifier: last.PayerTransfer.BalanceProof.ChannelIdentifier,
		NodeAddress:       last.PayerTransfer.BalanceProof.Sender,
	}

	events := mediateTransfer(channels, rng, state, e.Routes.Routes, payerRoute, e.Transfer, block)
	return state, events
}

// handleUnlock applies the off-chain unlock our payer sent for the lock we
// mediated, completing the payer side of that pair.
func handleUnlock(
	channels ChannelMap,
	state *mediatedtransfer.MediatorTransferState,
	e *transfer.ReceiveUnlock,
) (*mediatedtransfer.MediatorTransferState, []transfer.Event) {
	for _, pair := range state.TransfersPair {
		if pair.PayerTransfer.BalanceProof.Sender != e.BalanceProof.Sender {
			continue
		}
		payerChannel := getPayerChannel(channels, pair)
		if payerChannel == nil {
			continue
		}
		if !channel.HandleUnlock(payerChannel, state.Secrethash, e.BalanceProof) {
			continue
		}
		pair.PayerState = mediatedtransfer.PayerBalanceProof
		events := []transfer.Event{
			&transfer.EventUnlockClaimSuccess{
				PaymentIdentifier: pair.PayerTransfer.PaymentIdentifier,
				SecretHash:        state.Secrethash,
			},
			&transfer.SendProcessed{
				Recipient:         payerChannel.PartnerState.Address,
				ChannelIdentifier: payerChannel.Identifier,
				MessageIdentifier: e.MessageIdentifier,
			},
		}
		return state, events
	}
	return state, nil
}

// handleLockExpired delegates entirely to the channel handler and always
// folds the mediator state away afterwards: lock expiry announced by the
// peer is terminal for this mediation, with no per-pair bookkeeping of its
// own.
func handleLockExpired(channels ChannelMap, state *mediatedtransfer.MediatorTransferState, e *transfer.ReceiveLockExpired, block int64) {
	c := channels[e.FromRoute.ChannelIdentifier]
	if c == nil {
		return
	}
	channel.HandleReceiveLockExpired(c, e.Secrethash, block)
}
