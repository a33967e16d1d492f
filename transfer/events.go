package transfer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/mediatedtransfer"
)

// GlobalQueueIdentifier is the token slot used by events that are not
// scoped to a single token's channel queue (RevealSecret, Unlock,
// Processed): they still need a (recipient, token) key to land on a send
// queue, but they carry no per-channel ordering requirement of their own,
// so they all share the zero-token queue for their recipient.
var GlobalQueueIdentifier common.Address

// --- wire-bound send events -------------------------------------------------

// SendMediatedTransfer asks the transport to deliver a new locked transfer
// to the next hop.
type SendMediatedTransfer struct {
	Recipient         common.Address
	ChannelIdentifier common.Hash
	MessageIdentifier uint64
	Transfer          *mediatedtransfer.LockedTransferUnsignedState
}

func (*SendMediatedTransfer) isEvent() {}

// SendRefundTransfer asks the transport to deliver a refund back towards the
// payer when no further route could be found.
type SendRefundTransfer struct {
	Recipient         common.Address
	ChannelIdentifier common.Hash
	MessageIdentifier uint64
	Transfer          *mediatedtransfer.LockedTransferUnsignedState
}

func (*SendRefundTransfer) isEvent() {}

// SendRevealSecret asks the transport to reveal the secret to the payer of
// one mediation pair.
type SendRevealSecret struct {
	Recipient         common.Address
	ChannelIdentifier common.Hash
	MessageIdentifier uint64
	Secret            common.Hash
}

func (*SendRevealSecret) isEvent() {}

// SendUnlock asks the transport to deliver the off-chain unlock (balance
// proof plus secret) to the payee of one mediation pair.
type SendUnlock struct {
	Recipient         common.Address
	ChannelIdentifier common.Hash
	MessageIdentifier uint64
	PaymentIdentifier uint64
	Secret            common.Hash
	SecretHash        common.Hash
}

func (*SendUnlock) isEvent() {}

// SendProcessed asks the transport to acknowledge, at the application
// level, that a message (e.g. an Unlock) was processed.
type SendProcessed struct {
	Recipient         common.Address
	ChannelIdentifier common.Hash
	MessageIdentifier uint64
}

func (*SendProcessed) isEvent() {}

// --- contract-bound events ---------------------------------------------------

// UnlockProof is the data the on-chain unlock call needs for one lock.
type UnlockProof struct {
	LockEncoded []byte
	Secret      common.Hash
}

// ContractSendChannelBatchUnlock asks the chain client to claim one or more
// locks on a channel that has already closed, instead of waiting for an
// off-chain balance proof that will never arrive.
type ContractSendChannelBatchUnlock struct {
	TokenNetworkIdentifier common.Address
	ChannelIdentifier      common.Hash
	UnlockProofs           []*UnlockProof
}

func (*ContractSendChannelBatchUnlock) isEvent() {}

// ContractSendSecretReveal asks the chain client to register the secret
// on-chain because waiting for an off-chain reveal is no longer safe.
type ContractSendSecretReveal struct {
	Secret     common.Hash
	Expiration int64
}

func (*ContractSendSecretReveal) isEvent() {}

// --- outcome events, consumed by the host for accounting/metrics -----------

// EventUnlockSuccess records that this node paid its payee off-chain.
type EventUnlockSuccess struct {
	PaymentIdentifier uint64
	SecretHash        common.Hash
}

func (*EventUnlockSuccess) isEvent() {}

// EventUnlockFailed records that the payee-side lock expired unpaid.
type EventUnlockFailed struct {
	PaymentIdentifier uint64
	SecretHash        common.Hash
	Reason            string
}

func (*EventUnlockFailed) isEvent() {}

// EventUnlockClaimSuccess records that this node successfully claimed from
// its payer (off-chain ReceiveUnlock).
type EventUnlockClaimSuccess struct {
	PaymentIdentifier uint64
	SecretHash        common.Hash
}

func (*EventUnlockClaimSuccess) isEvent() {}

// EventUnlockClaimFailed records that the payer-side lock expired before
// this node could claim from it.
type EventUnlockClaimFailed struct {
	PaymentIdentifier uint64
	SecretHash        common.Hash
	Reason            string
}

func (*EventUnlockClaimFailed) isEvent() {}

// ContractSendChannelSettle is emitted when a lock crosses the confirmation
// threshold past expiration and must be cleaned up from our own channel
// state (handle_block's lock-expiry cleanup path).
type ContractSendChannelSettle struct {
	ChannelIdentifier common.Hash
	SecretHash        common.Hash
	Amount            *big.Int
}

func (*ContractSendChannelSettle) isEvent() {}
