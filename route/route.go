// Package route holds the candidate-path bookkeeping the mediator consults
// when it needs to pick the next hop for a mediated transfer.
package route

import "github.com/ethereum/go-ethereum/common"

// State names one candidate channel a mediated transfer could continue on:
// the channel identifier to look up in the channel map, and the partner
// address reachable through it.
type State struct {
	ChannelIdentifier common.Hash
	NodeAddress       common.Address
}

// RoutesState is an ordered list of candidate routes, best to worst. The
// caller (the routing service, out of scope for this module) is trusted for
// the ordering; the mediator only ever validates a route against current
// channel state before using it, since routes may race with local changes.
type RoutesState struct {
	Routes []*State
}

// Empty reports whether there are no candidate routes left to try.
func (r *RoutesState) Empty() bool {
	return r == nil || len(r.Routes) == 0
}
