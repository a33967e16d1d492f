// Package transport implements the reliable-datagram layer mediator events
// ride on: per-(destination, token) ordered retry queues, a health
// supervisor per peer, an ack/dedup cache, and the receive pipeline that
// hands decoded application messages to the host. None of it is
// synchronous with the mediator's pure transition function; it is the
// side-effecting shell a hostdispatch.Host drives.
package transport

import "time"

// Config carries the transport's tunables.
type Config struct {
	// RetryInterval is the first-attempt timeout: how long a freshly
	// enqueued message waits before its first retry.
	RetryInterval time.Duration
	// RetriesBeforeBackoff is how many attempts happen at RetryInterval
	// before the backoff starts doubling.
	RetriesBeforeBackoff int
	// MaxBackoff caps the doubling.
	MaxBackoff time.Duration

	NatKeepaliveRetries  int
	NatKeepaliveTimeout  time.Duration
	NatInvitationTimeout time.Duration

	CacheTTL time.Duration

	MaximumPendingTransfers           int
	DefaultNumberOfConfirmationsBlock int64

	UDPMaxMessageSize int
}

// DefaultConfig returns conservative defaults, tuned for WAN round trips.
func DefaultConfig() Config {
	return Config{
		RetryInterval:                     time.Second,
		RetriesBeforeBackoff:              5,
		MaxBackoff:                        10 * time.Second,
		NatKeepaliveRetries:               5,
		NatKeepaliveTimeout:               time.Second,
		NatInvitationTimeout:              60 * time.Second,
		CacheTTL:                          60 * time.Second,
		MaximumPendingTransfers:           160,
		DefaultNumberOfConfirmationsBlock: 6,
		UDPMaxMessageSize:                 1200,
	}
}
