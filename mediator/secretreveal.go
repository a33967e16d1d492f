package mediator

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/channel"
	"github.com/cryptobyte3/raiden/mediatedtransfer"
	"github.com/cryptobyte3/raiden/transfer"
)

// eventsForOnchainSecretReveal walks the pending pairs from latest to
// earliest and reveals the secret on chain for the first pair whose payer
// lock has entered the danger zone, provided the payer-side partner has the
// secret registered locally. Every pair in the chain shares the same
// secret, so a single on-chain reveal covers all of them.
func eventsForOnchainSecretReveal(channels ChannelMap, state *mediatedtransfer.MediatorTransferState, block int64) []transfer.Event {
	if state.Secret == nil {
		return nil
	}
	pending := pendingTransferPairs(state.TransfersPair)
	for i := len(pending) - 1; i >= 0; i-- {
		pair := pending[i]
		payerChannel := getPayerChannel(channels, pair)
		if payerChannel == nil {
			continue
		}
		lock := pair.PayerTransfer.Lock
		if !inDangerZone(lock.Expiration, payerChannel.RevealTimeout, block) {
			continue
		}
		if !channel.IsSecretKnown(payerChannel.PartnerState, lock.SecretHash) {
			continue
		}
		secret, _ := channel.GetSecret(payerChannel.PartnerState, lock.SecretHash)
		return []transfer.Event{
			&transfer.ContractSendSecretReveal{
				Secret:     secret,
				Expiration: lock.Expiration,
			},
		}
	}
	return nil
}

// handleSecretReveal records a newly learned secret and propagates it:
// register on every pair's channels, unlock on chain where a payer channel
// already closed, reveal upstream, and pay any payee it is still safe to
// pay off-chain. onchain selects registration semantics: an on-chain
// reveal is conclusive even against a closed channel.
func handleSecretReveal(
	channels ChannelMap,
	state *mediatedtransfer.MediatorTransferState,
	rng secretRevealRNG,
	secret common.Hash,
	secrethash common.Hash,
	sender common.Address,
	onchain bool,
	block int64,
) []transfer.Event {
	if state.Secret != nil || secrethash != state.Secrethash {
		return nil
	}
	state.Secret = &secret

	for _, pair := range state.TransfersPair {
		payerChannel := getPayerChannel(channels, pair)
		payeeChannel := getPayeeChannel(channels, pair)
		if onchain {
			if payerChannel != nil {
				channel.RegisterOnchainSecret(payerChannel, secret, secrethash)
			}
			if payeeChannel != nil {
				channel.RegisterOnchainSecret(payeeChannel, secret, secrethash)
			}
		} else {
			if payerChannel != nil {
				channel.RegisterSecret(payerChannel, secret, secrethash)
			}
			if payeeChannel != nil {
				channel.RegisterSecret(payeeChannel, secret, secrethash)
			}
		}
	}

	var events []transfer.Event

	for _, pair := range state.TransfersPair {
		payerChannel := getPayerChannel(channels, pair)
		if payerChannel != nil && channel.GetStatus(payerChannel) == channel.StateClosed {
			lock := channel.GetLock(payerChannel.PartnerState, secrethash)
			if lock != nil {
				events = append(events, &transfer.ContractSendChannelBatchUnlock{
					TokenNetworkIdentifier: payerChannel.TokenNetworkIdentifier,
					ChannelIdentifier:      payerChannel.Identifier,
					UnlockProofs:           []*transfer.UnlockProof{channel.ComputeProofForLock(lock, secret)},
				})
			}
			pair.PayerState = mediatedtransfer.PayerWaitingUnlock
		}
	}

	setPayeeStateAndCheckRevealOrder(state, sender)

	for i := len(state.TransfersPair) - 1; i >= 0; i-- {
		pair := state.TransfersPair[i]
		if stateSecretKnown[pair.PayeeState] && pair.PayerState == mediatedtransfer.PayerPending {
			payerChannel := getPayerChannel(channels, pair)
			if payerChannel != nil {
				events = append(events, &transfer.SendRevealSecret{
					Recipient:         payerChannel.PartnerState.Address,
					ChannelIdentifier: payerChannel.Identifier,
					MessageIdentifier: nextMessageIdentifier(rng),
					Secret:            secret,
				})
				pair.PayerState = mediatedtransfer.PayerSecretRevealed
			}
		}
	}

	for _, pair := range state.TransfersPair {
		if !stateSecretKnown[pair.PayeeState] {
			continue
		}
		if stateTransferPaid[pair.PayeeState] {
			continue
		}
		payeeChannel := getPayeeChannel(channels, pair)
		payerChannel := getPayerChannel(channels, pair)
		if payeeChannel == nil || payerChannel == nil {
			continue
		}
		if channel.GetStatus(payeeChannel) != channel.StateOpened {
			continue
		}
		if !isSafeToWait(pair.PayerTransfer.Lock.Expiration, payerChannel.RevealTimeout, block) {
			continue
		}
		messageIdentifier := nextMessageIdentifier(rng)
		sendUnlock := channel.SendUnlock(payeeChannel, messageIdentifier, pair.PayeeTransfer.PaymentIdentifier, secret, secrethash)
		if sendUnlock == nil {
			continue
		}
		events = append(events, sendUnlock, &transfer.EventUnlockSuccess{
			PaymentIdentifier: pair.PayeeTransfer.PaymentIdentifier,
			SecretHash:        secrethash,
		})
		pair.PayeeState = mediatedtransfer.PayeeBalanceProof
	}

	return events
}

// setPayeeStateAndCheckRevealOrder advances the payee_state of the pair
// whose payee_address matches sender to payee_secret_revealed.
//
// TODO: flag an out-of-order reveal (a payee revealing before its own
// payer pair has) as byzantine behavior worth an event.
func setPayeeStateAndCheckRevealOrder(state *mediatedtransfer.MediatorTransferState, sender common.Address) {
	for i := len(state.TransfersPair) - 1; i >= 0; i-- {
		pair := state.TransfersPair[i]
		if pair.PayeeAddress == sender {
			pair.PayeeState = mediatedtransfer.PayeeSecretRevealed
			return
		}
	}
}

// secretRevealRNG is the subset of *rand.Rand handleSecretReveal needs,
// named so callers can pass the shared transition-function rng without this
// file importing math/rand just for the parameter type.
type secretRevealRNG interface {
	Uint64() uint64
}
