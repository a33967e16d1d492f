package transfer

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/mediatedtransfer"
	"github.com/cryptobyte3/raiden/route"
)

// InitMediator is the state change that starts a new mediation: we received
// a locked transfer from from_route/from_transfer and must either mediate it
// onward or refuse.
type InitMediator struct {
	OurAddress   common.Address
	FromTransfer *mediatedtransfer.LockedTransferSignedState
	Routes       *route.RoutesState
	FromRoute    *route.State
	BlockNumber  int64
}

func (*InitMediator) isStateChange() {}

// Block notifies the state machine that a new block was mined.
type Block struct {
	BlockNumber int64
}

func (*Block) isStateChange() {}

// ReceiveTransferRefund is delivered when the downstream hop could not
// mediate further and refunded the transfer back to us.
type ReceiveTransferRefund struct {
	Transfer *mediatedtransfer.LockedTransferSignedState
	Routes   *route.RoutesState
}

func (*ReceiveTransferRefund) isStateChange() {}

// ReceiveSecretReveal is delivered when a peer reveals the secret to us
// off-chain.
type ReceiveSecretReveal struct {
	Secret     common.Hash
	Secrethash common.Hash
	Sender     common.Address
}

func (*ReceiveSecretReveal) isStateChange() {}

// ContractReceiveSecretReveal is delivered when the secret is learned from
// the secret registry contract rather than an off-chain message.
type ContractReceiveSecretReveal struct {
	Secret      common.Hash
	Secrethash  common.Hash
	BlockNumber int64
}

func (*ContractReceiveSecretReveal) isStateChange() {}

// ReceiveUnlock is delivered when our payer sends us the off-chain unlock
// for the lock we mediated.
type ReceiveUnlock struct {
	MessageIdentifier uint64
	BalanceProof      *mediatedtransfer.BalanceProofState
}

func (*ReceiveUnlock) isStateChange() {}

// ReceiveLockExpired is delivered when a peer tells us a lock has expired
// and should be removed from channel state.
type ReceiveLockExpired struct {
	FromRoute         *route.State
	Secrethash        common.Hash
	MessageIdentifier uint64
}

func (*ReceiveLockExpired) isStateChange() {}
