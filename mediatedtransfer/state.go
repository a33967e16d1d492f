// Package mediatedtransfer holds the data model a mediator uses to track a
// hash-time-locked transfer as it crosses one hop: the lock, the balance
// proof it rides on, the two transfer variants (signed/unsigned), one hop's
// mediation bookkeeping (MediationPairState), and the per-mediation state
// (MediatorTransferState) the transition function in package mediator
// operates on.
package mediatedtransfer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Lock is a hashed-time-locked claim embedded in a transfer: amount, the
// block at which it expires, and the hash whose preimage (the secret)
// unlocks it.
type Lock struct {
	Amount     *big.Int
	Expiration int64
	SecretHash common.Hash
}

// BalanceProofState is the signed off-chain accounting snapshot a transfer
// carries. It is monotonically non-decreasing per channel per sender: a
// later balance proof for the same (channel, sender) always has a
// greater-or-equal nonce, transferred amount and locked amount.
type BalanceProofState struct {
	ChannelIdentifier common.Hash
	Sender            common.Address
	Nonce             uint64
	TransferredAmount *big.Int
	LockedAmount      *big.Int
	Locksroot         common.Hash
}

// LockedTransferUnsignedState is a locked transfer produced locally; it has
// not yet been countersigned by its recipient and becomes an outbound wire
// event (SendMediatedTransfer/SendRefundTransfer).
type LockedTransferUnsignedState struct {
	BalanceProof      *BalanceProofState
	Lock              *Lock
	PaymentIdentifier uint64
	Initiator         common.Address
	Target            common.Address
	Token             common.Address
}

// LockedTransferSignedState is a locked transfer received from a peer,
// already bearing the peer's signature over its balance proof.
type LockedTransferSignedState struct {
	BalanceProof      *BalanceProofState
	Lock              *Lock
	PaymentIdentifier uint64
	Initiator         common.Address
	Target            common.Address
	Token             common.Address
}

// Valid payer/payee states for a MediationPairState. The mediator's sanity
// check rejects any pair whose side has strayed outside these sets.
var (
	ValidPayerStates = []string{
		PayerPending, PayerSecretRevealed, PayerWaitingClose,
		PayerWaitingUnlock, PayerBalanceProof, PayerExpired,
	}
	ValidPayeeStates = []string{
		PayeePending, PayeeSecretRevealed, PayeeContractUnlock,
		PayeeBalanceProof, PayeeExpired,
	}
)

// Payer-side states for one mediation pair.
const (
	PayerPending        = "payer_pending"
	PayerSecretRevealed = "payer_secret_revealed"
	PayerWaitingClose   = "payer_waiting_close"
	PayerWaitingUnlock  = "payer_waiting_unlock"
	PayerBalanceProof   = "payer_balance_proof"
	PayerExpired        = "payer_expired"
)

// Payee-side states for one mediation pair.
const (
	PayeePending        = "payee_pending"
	PayeeSecretRevealed = "payee_secret_revealed"
	PayeeContractUnlock = "payee_contract_unlock"
	PayeeBalanceProof   = "payee_balance_proof"
	PayeeExpired        = "payee_expired"
)

// MediationPairState is one hop's bookkeeping: what was received from the
// payer, what was sent to the payee, and each side's progress towards being
// paid.
type MediationPairState struct {
	PayerTransfer *LockedTransferSignedState
	PayeeAddress  common.Address
	PayeeTransfer *LockedTransferUnsignedState

	PayerState string
	PayeeState string
}

// NewMediationPairState builds a fresh pair in its initial pending state for
// both sides, as mediate_transfer does when it appends a new pair.
func NewMediationPairState(
	payerTransfer *LockedTransferSignedState,
	payeeAddress common.Address,
	payeeTransfer *LockedTransferUnsignedState,
) *MediationPairState {
	return &MediationPairState{
		PayerTransfer: payerTransfer,
		PayeeAddress:  payeeAddress,
		PayeeTransfer: payeeTransfer,
		PayerState:    PayerPending,
		PayeeState:    PayeePending,
	}
}

// MediatorTransferState is the per-mediation state the transition function
// owns: the secrethash identifying this mediation, the secret once learned,
// and the ordered chain of mediation pairs from first attempt to latest
// refund (ordered by strictly non-increasing lock expiration).
type MediatorTransferState struct {
	Secrethash common.Hash
	// Secret is nil until learned via ReceiveSecretReveal or
	// ContractReceiveSecretReveal.
	Secret *common.Hash

	TransfersPair []*MediationPairState
}

// NewMediatorTransferState creates the state InitMediator produces: a fresh
// mediation with no pairs yet and no known secret.
func NewMediatorTransferState(secrethash common.Hash) *MediatorTransferState {
	return &MediatorTransferState{Secrethash: secrethash}
}
