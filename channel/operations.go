package channel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/mediatedtransfer"
	"github.com/cryptobyte3/raiden/transfer"
)

// nextNonce returns the next nonce to stamp on an outgoing balance proof for
// end: nonces start at 1 and are strictly increasing per (channel, sender).
func nextNonce(end *EndState) uint64 {
	end.Nonce++
	return end.Nonce
}

// SendLockedTransfer builds the unsigned transfer and SendMediatedTransfer
// event for a new lock we are extending to target via channelState, and
// reserves the capacity against OurState.
func SendLockedTransfer(
	channelState *NettingChannelState,
	initiator, target common.Address,
	amount *big.Int,
	messageIdentifier, paymentIdentifier uint64,
	expiration int64,
	secrethash common.Hash,
) (*mediatedtransfer.LockedTransferUnsignedState, *transfer.SendMediatedTransfer) {
	lock := &mediatedtransfer.Lock{
		Amount:     amount,
		Expiration: expiration,
		SecretHash: secrethash,
	}
	channelState.OurState.SecrethashesToLockedLocks[secrethash] = lock

	balanceProof := &mediatedtransfer.BalanceProofState{
		ChannelIdentifier: channelState.Identifier,
		Sender:            channelState.OurState.Address,
		Nonce:             nextNonce(channelState.OurState),
		TransferredAmount: new(big.Int).Set(channelState.OurState.TransferredAmount),
		LockedAmount:      LockedAmount(channelState.OurState),
	}

	lockedTransfer := &mediatedtransfer.LockedTransferUnsignedState{
		BalanceProof:      balanceProof,
		Lock:              lock,
		PaymentIdentifier: paymentIdentifier,
		Initiator:         initiator,
		Target:            target,
		Token:             channelState.TokenAddress,
	}

	event := &transfer.SendMediatedTransfer{
		Recipient:         channelState.PartnerState.Address,
		ChannelIdentifier: channelState.Identifier,
		MessageIdentifier: messageIdentifier,
		Transfer:          lockedTransfer,
	}

	return lockedTransfer, event
}

// SendRefundTransfer builds the refund transfer and SendRefundTransfer event
// sent back towards the payer when no further route can carry the mediation
// forward. The refund reuses the payer's own lock (amount, expiration,
// secrethash), so the payer can cancel the two against each other.
func SendRefundTransfer(
	channelState *NettingChannelState,
	payerTransfer *mediatedtransfer.LockedTransferSignedState,
	messageIdentifier uint64,
) (*mediatedtransfer.LockedTransferUnsignedState, *transfer.SendRefundTransfer) {
	lock := payerTransfer.Lock
	channelState.OurState.SecrethashesToLockedLocks[lock.SecretHash] = lock

	balanceProof := &mediatedtransfer.BalanceProofState{
		ChannelIdentifier: channelState.Identifier,
		Sender:            channelState.OurState.Address,
		Nonce:             nextNonce(channelState.OurState),
		TransferredAmount: new(big.Int).Set(channelState.OurState.TransferredAmount),
		LockedAmount:      LockedAmount(channelState.OurState),
	}

	refund := &mediatedtransfer.LockedTransferUnsignedState{
		BalanceProof:      balanceProof,
		Lock:              lock,
		PaymentIdentifier: payerTransfer.PaymentIdentifier,
		Initiator:         payerTransfer.Initiator,
		Target:            payerTransfer.Target,
		Token:             channelState.TokenAddress,
	}

	event := &transfer.SendRefundTransfer{
		Recipient:         channelState.PartnerState.Address,
		ChannelIdentifier: channelState.Identifier,
		MessageIdentifier: messageIdentifier,
		Transfer:          refund,
	}

	return refund, event
}

// SendUnlock releases our side of the lock identified by secrethash to the
// payee: the lock is consumed from whichever book it sits in (a secret
// registered earlier has already moved it from locked to unlocked), its
// amount moves into TransferredAmount, and the SendUnlock event to deliver
// is returned.
func SendUnlock(
	channelState *NettingChannelState,
	messageIdentifier uint64,
	paymentIdentifier uint64,
	secret common.Hash,
	secrethash common.Hash,
) *transfer.SendUnlock {
	lock := GetLock(channelState.OurState, secrethash)
	if lock == nil {
		return nil
	}
	DeleteSecrethashEndstate(channelState.OurState, secrethash)
	channelState.OurState.TransferredAmount.Add(channelState.OurState.TransferredAmount, lock.Amount)
	nextNonce(channelState.OurState)

	return &transfer.SendUnlock{
		Recipient:         channelState.PartnerState.Address,
		ChannelIdentifier: channelState.Identifier,
		MessageIdentifier: messageIdentifier,
		PaymentIdentifier: paymentIdentifier,
		Secret:            secret,
		SecretHash:        secrethash,
	}
}

// RegisterSecret records that secret has been learned off-chain, moving any
// locks we hold for secrethash on either side of channelState from locked to
// unlocked. It is a no-op for a side with no such lock.
func RegisterSecret(channelState *NettingChannelState, secret, secrethash common.Hash) {
	registerOn(channelState.OurState, secret, secrethash)
	registerOn(channelState.PartnerState, secret, secrethash)
}

func registerOn(end *EndState, secret, secrethash common.Hash) {
	lock, ok := end.SecrethashesToLockedLocks[secrethash]
	if !ok {
		return
	}
	delete(end.SecrethashesToLockedLocks, secrethash)
	end.SecrethashesToUnlockedLocks[secrethash] = &UnlockPartialProof{Lock: lock, Secret: secret}
}

// RegisterOnchainSecret records that secret was learned from the secret
// registry contract, which is conclusive even for a closed channel.
func RegisterOnchainSecret(channelState *NettingChannelState, secret, secrethash common.Hash) {
	registerOnchainOn(channelState.OurState, secret, secrethash)
	registerOnchainOn(channelState.PartnerState, secret, secrethash)
}

func registerOnchainOn(end *EndState, secret, secrethash common.Hash) {
	if lock, ok := end.SecrethashesToLockedLocks[secrethash]; ok {
		delete(end.SecrethashesToLockedLocks, secrethash)
		end.SecrethashesToOnchainUnlockedLocks[secrethash] = &UnlockPartialProof{Lock: lock, Secret: secret}
		return
	}
	if proof, ok := end.SecrethashesToUnlockedLocks[secrethash]; ok {
		delete(end.SecrethashesToUnlockedLocks, secrethash)
		end.SecrethashesToOnchainUnlockedLocks[secrethash] = proof
	}
}

// ComputeProofForLock returns the data needed to claim lock on-chain once
// secret is known.
func ComputeProofForLock(lock *mediatedtransfer.Lock, secret common.Hash) *transfer.UnlockProof {
	return &transfer.UnlockProof{
		LockEncoded: encodeLock(lock),
		Secret:      secret,
	}
}

func encodeLock(lock *mediatedtransfer.Lock) []byte {
	amount := lock.Amount.Bytes()
	buf := make([]byte, 0, len(amount)+8+len(lock.SecretHash))
	buf = append(buf, amount...)
	exp := big.NewInt(lock.Expiration).Bytes()
	buf = append(buf, exp...)
	buf = append(buf, lock.SecretHash[:]...)
	return buf
}

// HandleReceiveLockedTransfer validates an incoming locked transfer against
// PartnerState's accounting (monotonic nonce, positive amount within
// distributable capacity) and, if valid, registers the lock against
// PartnerState. Mediation only proceeds once this validation has passed.
func HandleReceiveLockedTransfer(
	channelState *NettingChannelState,
	lockedTransfer *mediatedtransfer.LockedTransferSignedState,
) bool {
	partner := channelState.PartnerState
	bp := lockedTransfer.BalanceProof
	if bp == nil || bp.Nonce <= partner.Nonce {
		return false
	}
	if !IsValidAmount(partner, lockedTransfer.Lock.Amount) {
		return false
	}
	if lockedTransfer.Lock.Amount.Cmp(GetDistributable(partner)) > 0 {
		return false
	}

	partner.SecrethashesToLockedLocks[lockedTransfer.Lock.SecretHash] = lockedTransfer.Lock
	partner.Nonce = bp.Nonce
	partner.TransferredAmount = new(big.Int).Set(bp.TransferredAmount)
	return true
}

// HandleRefundTransfer validates a refund the same way an initial locked
// transfer is validated: the refund is itself a locked transfer back towards
// us, carried on the same channel, and must respect the original lock.
func HandleRefundTransfer(
	channelState *NettingChannelState,
	originalLock *mediatedtransfer.Lock,
	refund *mediatedtransfer.LockedTransferSignedState,
) bool {
	if refund.Lock.SecretHash != originalLock.SecretHash {
		return false
	}
	if refund.Lock.Amount.Cmp(originalLock.Amount) != 0 {
		return false
	}
	if refund.Lock.Expiration > originalLock.Expiration {
		return false
	}
	return HandleReceiveLockedTransfer(channelState, refund)
}

// HandleUnlock validates an off-chain unlock sent by our payer and, if
// valid, releases the corresponding lock from PartnerState's books.
func HandleUnlock(channelState *NettingChannelState, secrethash common.Hash, bp *mediatedtransfer.BalanceProofState) bool {
	partner := channelState.PartnerState
	if bp == nil || bp.Nonce <= partner.Nonce {
		return false
	}
	lock := GetLock(partner, secrethash)
	if lock == nil {
		return false
	}
	DeleteSecrethashEndstate(partner, secrethash)
	partner.Nonce = bp.Nonce
	partner.TransferredAmount = new(big.Int).Add(partner.TransferredAmount, lock.Amount)
	return true
}

// HandleReceiveLockExpired removes a lock that a peer has told us expired,
// from PartnerState's books, once the lock has in fact expired.
func HandleReceiveLockExpired(channelState *NettingChannelState, secrethash common.Hash, blockNumber int64) bool {
	lock, ok := channelState.PartnerState.SecrethashesToLockedLocks[secrethash]
	if !ok {
		return false
	}
	if blockNumber <= lock.Expiration {
		return false
	}
	delete(channelState.PartnerState.SecrethashesToLockedLocks, secrethash)
	return true
}

// EventsForExpiredLock builds the cleanup event for a lock of ours that has
// crossed its expiry confirmation threshold unclaimed, and removes it from
// our own books.
func EventsForExpiredLock(channelState *NettingChannelState, secrethash common.Hash) []transfer.Event {
	lock, ok := channelState.OurState.SecrethashesToLockedLocks[secrethash]
	if !ok {
		return nil
	}
	delete(channelState.OurState.SecrethashesToLockedLocks, secrethash)
	return []transfer.Event{
		&transfer.ContractSendChannelSettle{
			ChannelIdentifier: channelState.Identifier,
			SecretHash:        secrethash,
			Amount:            lock.Amount,
		},
	}
}
