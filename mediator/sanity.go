package mediator

import "github.com/cryptobyte3/raiden/mediatedtransfer"

// sanityCheck enforces the structural invariants of a
// MediatorTransferState: every pair's sides hold a declared state, a paid
// pair implies a known secret, the state's secrethash matches the first
// pair, and consecutive pairs form a contiguous chain. It panics on
// violation: these are bugs in the transition function itself, not a
// condition the caller can recover from.
func sanityCheck(state *mediatedtransfer.MediatorTransferState) {
	if state == nil {
		return
	}

	secretKnown := state.Secret != nil
	for _, pair := range state.TransfersPair {
		if !containsState(mediatedtransfer.ValidPayerStates, pair.PayerState) {
			panic("mediator: unknown payer state " + pair.PayerState)
		}
		if !containsState(mediatedtransfer.ValidPayeeStates, pair.PayeeState) {
			panic("mediator: unknown payee state " + pair.PayeeState)
		}
		if stateTransferPaid[pair.PayerState] || stateTransferPaid[pair.PayeeState] {
			if !secretKnown {
				panic("mediator: pair in a paid state but secret is not set")
			}
		}
	}

	if len(state.TransfersPair) > 0 {
		first := state.TransfersPair[0]
		if first.PayerTransfer.Lock.SecretHash != state.Secrethash {
			panic("mediator: secrethash mismatch with first pair's payer transfer")
		}
	}

	for i := 1; i < len(state.TransfersPair); i++ {
		prev := state.TransfersPair[i-1]
		next := state.TransfersPair[i]
		if prev.PayeeAddress != next.PayerTransfer.BalanceProof.Sender {
			panic("mediator: non-contiguous mediation chain (payee/payer address mismatch)")
		}
		if prev.PayeeTransfer.Lock.Expiration != next.PayerTransfer.Lock.Expiration {
			panic("mediator: non-contiguous mediation chain (lock expiration mismatch)")
		}
	}
}

// containsState reports whether s is one of the declared valid states.
func containsState(valid []string, s string) bool {
	for _, v := range valid {
		if v == s {
			return true
		}
	}
	return false
}

// isPairFullyPaid reports whether both sides of pair are in a paid state.
func isPairFullyPaid(pair *mediatedtransfer.MediationPairState) bool {
	return stateTransferPaid[pair.PayerState] && stateTransferPaid[pair.PayeeState]
}

// pendingTransferPairs returns the pairs with at least one non-final side,
// the set Block handling and the on-chain reveal selection operate on.
func pendingTransferPairs(pairs []*mediatedtransfer.MediationPairState) []*mediatedtransfer.MediationPairState {
	pending := make([]*mediatedtransfer.MediationPairState, 0, len(pairs))
	for _, pair := range pairs {
		if !stateTransferFinal[pair.PayerState] || !stateTransferFinal[pair.PayeeState] {
			pending = append(pending, pair)
		}
	}
	return pending
}

// clearIfFinalized replaces state with nil once every pair is fully paid:
// nothing is left to claim or to pay, so the mediation is dropped.
func clearIfFinalized(state *mediatedtransfer.MediatorTransferState) *mediatedtransfer.MediatorTransferState {
	if state == nil || len(state.TransfersPair) == 0 {
		return state
	}
	for _, pair := range state.TransfersPair {
		if !isPairFullyPaid(pair) {
			return state
		}
	}
	return nil
}
