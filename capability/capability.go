// Package capability declares the external collaborators the mediator and
// transport call through, but never implement themselves: signing, peer
// discovery, the on-chain client, and the host's message dispatch. Keeping
// these as narrow interfaces (rather than handing every task the full
// service object) follows the "cyclic references" design note: a task gets
// a handle to exactly the capability it needs.
package capability

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Endpoint is a resolved network location for a peer.
type Endpoint struct {
	Host string
	Port uint16
}

// Signer produces a signature over a message's canonical byte encoding.
// Key handling and the signature scheme live outside this module.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// Discovery maps a node address to its current network endpoint. How the
// mapping is maintained (a registry contract, static config) is external;
// this module only consumes it.
type Discovery interface {
	Get(address common.Address) (Endpoint, error)
}

// ApplicationMessage is any signed, non-Ack, non-Ping message the transport
// hands to the host. Its wire encoding is opaque to this module (the codec
// of individual message types is out of scope); only the fields the
// transport needs to touch are exposed.
type ApplicationMessage interface {
	Sender() common.Address
	// Token returns the token address the message is scoped to, or the
	// zero address if the message is not per-channel (e.g. Processed).
	Token() common.Address
	Encode() ([]byte, error)
}

// MessageHost is the host-side dispatcher the transport calls into for
// every received application message. Returning one of the sentinel errors
// below tells the transport to silently drop the message instead of
// acknowledging it.
type MessageHost interface {
	OnMessage(ctx context.Context, msg ApplicationMessage, echohash common.Hash) error
}

// DatagramTransport is the best-effort, unreliable datagram layer this
// module's retry logic rides on top of. Its own implementation (UDP
// sockets, NAT traversal, etc.) is an external collaborator.
type DatagramTransport interface {
	Start() error
	Stop() error
	StopAccepting()
	Send(source common.Address, dest Endpoint, data []byte) error
	Started() bool
}

// ChainClient dispatches a contract-bound event (e.g.
// ContractSendSecretReveal) to the blockchain. The contract call itself,
// including gas and confirmation handling, is an external collaborator.
type ChainClient interface {
	Dispatch(ctx context.Context, event interface{}) error
}
