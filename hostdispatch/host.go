// Package hostdispatch wires the mediator's pure transition function to the
// transport layer and the chain client: it owns per-secrethash mediation
// state, applies incoming state changes, and routes every emitted event to
// the sink that can act on it (wire send, contract call, or outcome
// accounting). Each subsystem gets a narrow capability interface rather
// than a handle to the full object graph.
package hostdispatch

import (
	"context"
	"math/rand"
	"sync"

	"github.com/go-errors/errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/capability"
	"github.com/cryptobyte3/raiden/mediatedtransfer"
	"github.com/cryptobyte3/raiden/mediator"
	"github.com/cryptobyte3/raiden/transfer"
	"github.com/cryptobyte3/raiden/transport"
	"github.com/cryptobyte3/raiden/utils"
)

// Sink receives terminal outcome events (paid/failed, claimed/claim-failed)
// for accounting; it is the caller's own bookkeeping, not part of this
// module's state.
type Sink interface {
	OnOutcome(event transfer.Event)
}

// Host is the single mediation node: one mediator.ChannelMap, one
// transport.Transport, one chain client, and the in-memory table of active
// mediations keyed by secrethash. State lives in memory only; a restart
// starts from a clean table.
type Host struct {
	ourAddress common.Address
	channels   mediator.ChannelMap
	transport  *transport.Transport
	chain      capability.ChainClient
	sink       Sink
	rng        *rand.Rand
	control    *controlTower

	mu        sync.Mutex
	states    map[common.Hash]*mediatedtransfer.MediatorTransferState
	lastBlock int64
}

// New builds a Host. channels is shared, mutable state the caller continues
// to own; Host only reads and delegates mutation of it to package channel
// through package mediator.
func New(
	ourAddress common.Address,
	channels mediator.ChannelMap,
	tp *transport.Transport,
	chain capability.ChainClient,
	sink Sink,
	rng *rand.Rand,
) *Host {
	return &Host{
		ourAddress: ourAddress,
		channels:   channels,
		transport:  tp,
		chain:      chain,
		sink:       sink,
		rng:        rng,
		control:    newControlTower(),
		states:     make(map[common.Hash]*mediatedtransfer.MediatorTransferState),
	}
}

// OnMessage implements capability.MessageHost: every decoded inbound state
// change reaches the mediator through here.
func (h *Host) OnMessage(ctx context.Context, msg capability.ApplicationMessage, echohash common.Hash) error {
	env, ok := msg.(*inboundEnvelope)
	if !ok {
		return errors.Errorf("hostdispatch: unexpected message type %T", msg)
	}
	return h.Apply(ctx, env.frame.Change)
}

// Apply runs one state change through the mediator and dispatches whatever
// events it produces. A replayed state change (same dedup key seen before)
// is a no-op, not an error.
func (h *Host) Apply(ctx context.Context, sc transfer.StateChange) error {
	if key := stateChangeKey(sc); key != "" {
		if err := h.control.clearForTakeoff(key); err != nil {
			return nil
		}
	}

	if block, ok := sc.(*transfer.Block); ok {
		return h.applyBlock(ctx, block)
	}

	secrethash, ok := h.resolveSecrethash(sc)
	if !ok {
		log.Debugf("hostdispatch: state change %T names no known mediation (secrethash %s), dropping", sc, utils.Pex(secrethash))
		return nil
	}

	h.mu.Lock()
	state := h.states[secrethash]
	h.mu.Unlock()

	newState, events := mediator.Transition(state, sc, h.channels, h.rng, h.currentBlock())

	h.mu.Lock()
	if newState == nil {
		delete(h.states, secrethash)
	} else {
		h.states[secrethash] = newState
	}
	h.mu.Unlock()

	return h.dispatch(ctx, events)
}

// applyBlock runs the Block state change against every active mediation:
// block notifications are not scoped to a single secrethash.
func (h *Host) applyBlock(ctx context.Context, b *transfer.Block) error {
	h.mu.Lock()
	h.lastBlock = b.BlockNumber
	secrethashes := make([]common.Hash, 0, len(h.states))
	for sh := range h.states {
		secrethashes = append(secrethashes, sh)
	}
	h.mu.Unlock()

	for _, sh := range secrethashes {
		h.mu.Lock()
		state := h.states[sh]
		h.mu.Unlock()
		if state == nil {
			continue
		}

		newState, events := mediator.Transition(state, b, h.channels, h.rng, b.BlockNumber)

		h.mu.Lock()
		if newState == nil {
			delete(h.states, sh)
		} else {
			h.states[sh] = newState
		}
		h.mu.Unlock()

		if err := h.dispatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

// resolveSecrethash finds which tracked mediation sc belongs to. Most state
// changes name their secrethash directly; InitMediator starts a fresh one;
// ReceiveUnlock carries only a balance proof, so it is matched the same way
// handleUnlock itself matches pairs, against each tracked mediation's payer
// side.
func (h *Host) resolveSecrethash(sc transfer.StateChange) (common.Hash, bool) {
	switch e := sc.(type) {
	case *transfer.InitMediator:
		if e.FromTransfer == nil || e.FromTransfer.Lock == nil {
			return common.Hash{}, false
		}
		return e.FromTransfer.Lock.SecretHash, true

	case *transfer.ReceiveTransferRefund:
		if e.Transfer == nil || e.Transfer.Lock == nil {
			return common.Hash{}, false
		}
		return e.Transfer.Lock.SecretHash, true

	case *transfer.ReceiveSecretReveal:
		return e.Secrethash, true

	case *transfer.ContractReceiveSecretReveal:
		return e.Secrethash, true

	case *transfer.ReceiveLockExpired:
		return e.Secrethash, true

	case *transfer.ReceiveUnlock:
		return h.matchUnlock(e)

	default:
		return common.Hash{}, false
	}
}

func (h *Host) matchUnlock(e *transfer.ReceiveUnlock) (common.Hash, bool) {
	if e.BalanceProof == nil {
		return common.Hash{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sh, state := range h.states {
		for _, pair := range state.TransfersPair {
			if pair.PayerTransfer.BalanceProof.Sender == e.BalanceProof.Sender &&
				pair.PayerTransfer.BalanceProof.ChannelIdentifier == e.BalanceProof.ChannelIdentifier {
				return sh, true
			}
		}
	}
	return common.Hash{}, false
}

// currentBlock reports the height of the most recent Block state change
// applied, or 0 before the first one. Transition calls outside applyBlock
// (InitMediator, reveals, unlocks, refunds) use this as "the current
// height" rather than carrying their own.
func (h *Host) currentBlock() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastBlock
}

func (h *Host) dispatch(ctx context.Context, events []transfer.Event) error {
	for _, ev := range events {
		if err := h.dispatchOne(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) dispatchOne(ctx context.Context, ev transfer.Event) error {
	switch e := ev.(type) {
	case *transfer.SendMediatedTransfer:
		return h.sendWire(e.Recipient, e.Transfer.Token, ev)
	case *transfer.SendRefundTransfer:
		return h.sendWire(e.Recipient, e.Transfer.Token, ev)
	case *transfer.SendRevealSecret:
		return h.sendWire(e.Recipient, transfer.GlobalQueueIdentifier, ev)
	case *transfer.SendUnlock:
		return h.sendWire(e.Recipient, transfer.GlobalQueueIdentifier, ev)
	case *transfer.SendProcessed:
		return h.sendWire(e.Recipient, transfer.GlobalQueueIdentifier, ev)

	case *transfer.ContractSendChannelBatchUnlock:
		return h.chain.Dispatch(ctx, e)
	case *transfer.ContractSendSecretReveal:
		return h.chain.Dispatch(ctx, e)
	case *transfer.ContractSendChannelSettle:
		return h.chain.Dispatch(ctx, e)

	case *transfer.EventUnlockSuccess, *transfer.EventUnlockFailed,
		*transfer.EventUnlockClaimSuccess, *transfer.EventUnlockClaimFailed:
		if h.sink != nil {
			h.sink.OnOutcome(ev)
		}
		return nil

	default:
		return errors.Errorf("hostdispatch: unhandled event type %T", ev)
	}
}

func (h *Host) sendWire(recipient, token common.Address, ev transfer.Event) error {
	msg := &wireEvent{sender: h.ourAddress, token: token, event: ev}
	_, err := h.transport.SendAsync(recipient, msg)
	return err
}
