package hostdispatch

import (
	"fmt"
	"sync"

	"github.com/go-errors/errors"

	"github.com/cryptobyte3/raiden/mediatedtransfer"
	"github.com/cryptobyte3/raiden/transfer"
)

// ErrAlreadyApplied signals that a state change with this dedup key has
// already been run through the transition function once; the caller should
// treat this as a no-op rather than an error.
var ErrAlreadyApplied = errors.New("hostdispatch: state change already applied")

// controlTower guards one mediation step's state change against
// double-application (at-least-once
// delivery from the transport layer on top of at-least-once retries from a
// peer's own transport queue, plus duplicate block notifications). There is
// no persistent backing store since the state-snapshot format is a Non-goal;
// a restart simply forgets which state changes were already seen, same as
// the mediator state itself.
type controlTower struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newControlTower() *controlTower {
	return &controlTower{seen: make(map[string]struct{})}
}

// clearForTakeoff atomically checks whether key has been seen before and, if
// not, marks it seen. It returns ErrAlreadyApplied on a replay.
func (c *controlTower) clearForTakeoff(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[key]; ok {
		return ErrAlreadyApplied
	}
	c.seen[key] = struct{}{}
	return nil
}

// stateChangeKey derives the dedup key for sc, or "" if sc carries no
// identity worth deduplicating on (none currently; every state change this
// dispatcher accepts has one).
func stateChangeKey(sc transfer.StateChange) string {
	switch e := sc.(type) {
	case *transfer.InitMediator:
		return fmt.Sprintf("init:%s", lockSecretHash(e.FromTransfer))
	case *transfer.Block:
		return fmt.Sprintf("block:%d", e.BlockNumber)
	case *transfer.ReceiveTransferRefund:
		return fmt.Sprintf("refund:%s:%d", lockSecretHash(e.Transfer), e.Transfer.BalanceProof.Nonce)
	case *transfer.ReceiveSecretReveal:
		return fmt.Sprintf("secretreveal:%s:%s", e.Secrethash, e.Sender)
	case *transfer.ContractReceiveSecretReveal:
		return fmt.Sprintf("contractsecretreveal:%s", e.Secrethash)
	case *transfer.ReceiveUnlock:
		return fmt.Sprintf("unlock:%d", e.MessageIdentifier)
	case *transfer.ReceiveLockExpired:
		return fmt.Sprintf("lockexpired:%s:%d", e.Secrethash, e.MessageIdentifier)
	default:
		return ""
	}
}

func lockSecretHash(t *mediatedtransfer.LockedTransferSignedState) string {
	if t == nil || t.Lock == nil {
		return ""
	}
	return t.Lock.SecretHash.Hex()
}
