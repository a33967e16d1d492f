// Package channel models one bilateral payment channel's accounting state
// and the handful of state transitions the mediator delegates to it:
// validating an incoming locked transfer, constructing an outgoing one,
// registering a learned secret, and applying an unlock or refund.
package channel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/mediatedtransfer"
)

// Status is the on-chain lifecycle stage of a channel.
type Status int

const (
	StateOpened Status = iota
	StateClosed
	StateSettled
)

// UnlockPartialProof pairs a lock with the secret that unlocks it, once the
// secret becomes known (off-chain or on-chain).
type UnlockPartialProof struct {
	Lock   *mediatedtransfer.Lock
	Secret common.Hash
}

// EndState is one side's ledger within a channel: what it has deposited,
// transferred, and which locks are outstanding against it.
type EndState struct {
	Address           common.Address
	Deposit           *big.Int
	TransferredAmount *big.Int
	Nonce             uint64

	// SecrethashesToLockedLocks holds locks whose secret is not yet known.
	SecrethashesToLockedLocks map[common.Hash]*mediatedtransfer.Lock
	// SecrethashesToUnlockedLocks holds locks unlocked by an off-chain
	// secret reveal, pending a balance-proof update.
	SecrethashesToUnlockedLocks map[common.Hash]*UnlockPartialProof
	// SecrethashesToOnchainUnlockedLocks holds locks unlocked via the
	// on-chain secret registry.
	SecrethashesToOnchainUnlockedLocks map[common.Hash]*UnlockPartialProof
}

// NewEndState returns an EndState with an initial deposit and empty lock
// books.
func NewEndState(address common.Address, deposit *big.Int) *EndState {
	return &EndState{
		Address:                            address,
		Deposit:                            deposit,
		TransferredAmount:                  big.NewInt(0),
		SecrethashesToLockedLocks:          make(map[common.Hash]*mediatedtransfer.Lock),
		SecrethashesToUnlockedLocks:        make(map[common.Hash]*UnlockPartialProof),
		SecrethashesToOnchainUnlockedLocks: make(map[common.Hash]*UnlockPartialProof),
	}
}

// NettingChannelState is the bilateral channel state the mediator validates
// transfers against and mutates as it mediates them.
type NettingChannelState struct {
	Identifier             common.Hash
	TokenAddress           common.Address
	TokenNetworkIdentifier common.Address
	SettleTimeout          int64
	RevealTimeout          int64
	State                  Status

	OurState     *EndState
	PartnerState *EndState
}

// LockedAmount sums the amount locked against this side, whether or not the
// secret is known yet: an unlocked-but-not-yet-balance-proofed lock still
// occupies channel capacity until the balance proof lands.
func LockedAmount(end *EndState) *big.Int {
	total := big.NewInt(0)
	for _, lock := range end.SecrethashesToLockedLocks {
		total.Add(total, lock.Amount)
	}
	for _, proof := range end.SecrethashesToUnlockedLocks {
		total.Add(total, proof.Lock.Amount)
	}
	for _, proof := range end.SecrethashesToOnchainUnlockedLocks {
		total.Add(total, proof.Lock.Amount)
	}
	return total
}

// GetDistributable returns the amount end can still lock: its deposit minus
// what it has already transferred minus what is already locked.
func GetDistributable(end *EndState) *big.Int {
	distributable := new(big.Int).Sub(end.Deposit, end.TransferredAmount)
	distributable.Sub(distributable, LockedAmount(end))
	if distributable.Sign() < 0 {
		return big.NewInt(0)
	}
	return distributable
}

// GetNumberOfPendingTransfers returns the count of locks whose secret is not
// yet known, used to cap MAXIMUM_PENDING_TRANSFERS.
func GetNumberOfPendingTransfers(end *EndState) int {
	return len(end.SecrethashesToLockedLocks)
}

// GetStatus returns the channel's on-chain lifecycle stage.
func GetStatus(c *NettingChannelState) Status {
	return c.State
}

// IsValidAmount reports whether amount is a sane, strictly-positive transfer
// amount. It is deliberately independent of the distributable check: the
// latter is about channel capacity, this one is about the amount itself
// being well-formed.
func IsValidAmount(_ *EndState, amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

// IsSecretKnown reports whether end already knows the preimage for
// secrethash, off-chain or on-chain.
func IsSecretKnown(end *EndState, secrethash common.Hash) bool {
	if _, ok := end.SecrethashesToUnlockedLocks[secrethash]; ok {
		return true
	}
	_, ok := end.SecrethashesToOnchainUnlockedLocks[secrethash]
	return ok
}

// GetSecret returns the secret end knows for secrethash, if any.
func GetSecret(end *EndState, secrethash common.Hash) (common.Hash, bool) {
	if proof, ok := end.SecrethashesToUnlockedLocks[secrethash]; ok {
		return proof.Secret, true
	}
	if proof, ok := end.SecrethashesToOnchainUnlockedLocks[secrethash]; ok {
		return proof.Secret, true
	}
	return common.Hash{}, false
}

// GetLock returns the lock end is tracking for secrethash, whether still
// locked or already unlocked, if any.
func GetLock(end *EndState, secrethash common.Hash) *mediatedtransfer.Lock {
	if lock, ok := end.SecrethashesToLockedLocks[secrethash]; ok {
		return lock
	}
	if proof, ok := end.SecrethashesToUnlockedLocks[secrethash]; ok {
		return proof.Lock
	}
	if proof, ok := end.SecrethashesToOnchainUnlockedLocks[secrethash]; ok {
		return proof.Lock
	}
	return nil
}

// DeleteSecrethashEndstate removes every trace of secrethash from end, used
// when an unlock consumes the lock (SendUnlock, HandleUnlock).
func DeleteSecrethashEndstate(end *EndState, secrethash common.Hash) {
	delete(end.SecrethashesToLockedLocks, secrethash)
	delete(end.SecrethashesToUnlockedLocks, secrethash)
	delete(end.SecrethashesToOnchainUnlockedLocks, secrethash)
}
