// Package mediator implements the pure mediator transition function: given
// the current MediatorTransferState (or nil), a state change, the set of
// channels known to this node, a source of randomness for message
// identifiers, and the current block number, it returns the next state and
// the events to dispatch. It holds no I/O and no mutable package state.
package mediator

const (
	// MaximumPendingTransfers caps the number of locks a channel side may
	// have outstanding with an unknown secret at once.
	MaximumPendingTransfers = 160

	// DefaultNumberOfConfirmationsBlock is how many blocks past a lock's
	// expiration this node waits before treating the lock as safely
	// unreachable and purging it from its own channel state.
	DefaultNumberOfConfirmationsBlock = 6
)

// Payee states in which the secret is known to the payee side of a pair,
// whether off-chain or on-chain. Mirrors STATE_SECRET_KNOWN.
var stateSecretKnown = map[string]bool{}

// Pair states, across both sides, for which the pair is done being paid.
// Mirrors STATE_TRANSFER_PAID.
var stateTransferPaid = map[string]bool{}

// Pair states, across both sides, past which nothing further will happen for
// that side: paid, or expired unclaimed. Mirrors STATE_TRANSFER_FINAL.
var stateTransferFinal = map[string]bool{}

func init() {
	for _, s := range []string{"payee_secret_revealed", "payee_contract_unlock", "payee_balance_proof"} {
		stateSecretKnown[s] = true
	}
	for _, s := range []string{"payee_contract_unlock", "payee_balance_proof", "payer_balance_proof"} {
		stateTransferPaid[s] = true
	}
	for s := range stateTransferPaid {
		stateTransferFinal[s] = true
	}
	stateTransferFinal["payer_expired"] = true
	stateTransferFinal["payee_expired"] = true
}
