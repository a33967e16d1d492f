package capability

import "errors"

// Peer-originated protocol violations. The transport's receive pipeline
// checks for these with errors.Is and, when matched, drops the message
// without acknowledging it instead of propagating the failure. Call sites
// that want a stack trace attached wrap these with
// github.com/go-errors/errors.Wrap before returning them.
var (
	ErrUnknownAddress      = errors.New("unknown address")
	ErrInvalidNonce        = errors.New("invalid nonce")
	ErrTransferWhenClosed  = errors.New("transfer received for a closed channel")
	ErrTransferUnwanted    = errors.New("transfer unwanted")
	ErrUnknownTokenAddress = errors.New("unknown token address")
	ErrInvalidLocksRoot    = errors.New("invalid locksroot")
)

// IsDropSilently reports whether err is one of the peer-protocol-violation
// sentinels that the receive pipeline should swallow (no ack, no
// propagation) rather than treat as an irrecoverable failure.
func IsDropSilently(err error) bool {
	for _, sentinel := range []error{
		ErrUnknownAddress,
		ErrInvalidNonce,
		ErrTransferWhenClosed,
		ErrTransferUnwanted,
		ErrUnknownTokenAddress,
		ErrInvalidLocksRoot,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
