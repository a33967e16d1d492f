package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/capability"
	"github.com/cryptobyte3/raiden/internal/ticker"
)

// NodeNetworkState is the health supervisor's view of a peer.
type NodeNetworkState int

const (
	NodeUnknown NodeNetworkState = iota
	NodeReachable
	NodeUnreachable
)

// healthSupervisor pings one destination on a schedule and exposes its
// current reachability as a pair of events a send queue consults before
// transmitting. One supervisor runs per destination.
type healthSupervisor struct {
	ourAddress common.Address
	dest       common.Address
	cfg        Config
	signer     capability.Signer
	datagram   capability.DatagramTransport
	discovery  *discoveryCache
	discover   capability.Discovery

	mu    sync.Mutex
	state NodeNetworkState
	// nonce is per-peer monotonically increasing across every ping this
	// supervisor sends; mutated only by the supervisor goroutine.
	nonce uint64

	healthy   *event
	unhealthy *event
	stop      *event

	// registerAck hands back the ack event the owning Transport will fire
	// when an Ack matching the given echohash arrives.
	registerAck func(echohash common.Hash) *event

	tick ticker.Ticker
}

func newHealthSupervisor(
	ourAddress, dest common.Address,
	cfg Config,
	signer capability.Signer,
	datagram capability.DatagramTransport,
	discovery *discoveryCache,
	discover capability.Discovery,
	registerAck func(echohash common.Hash) *event,
	stop *event,
) *healthSupervisor {
	h := &healthSupervisor{
		ourAddress:  ourAddress,
		dest:        dest,
		cfg:         cfg,
		signer:      signer,
		datagram:    datagram,
		discovery:   discovery,
		discover:    discover,
		state:       NodeUnknown,
		healthy:     newEvent(),
		unhealthy:   newEvent(),
		registerAck: registerAck,
		stop:        stop,
		tick:        ticker.New(cfg.NatKeepaliveTimeout),
	}
	// "Initially marks node UNKNOWN, sets healthy."
	h.healthy.Set()
	return h
}

// Events returns the health events a send queue waits on, per
// get_health_events(dest) -> (healthy, unhealthy).
func (h *healthSupervisor) Events() (healthy, unhealthy *event) {
	return h.healthy, h.unhealthy
}

// run is the supervisor's goroutine body: ping, judge reachability,
// transition state, repeat.
func (h *healthSupervisor) run(wg *sync.WaitGroup) {
	defer wg.Done()

	h.tick.Resume()
	defer h.tick.Stop()

	for {
		select {
		case <-h.stop.Chan():
			return
		default:
		}

		acked := h.pingWithRetries(h.cfg.NatKeepaliveRetries, h.cfg.NatKeepaliveTimeout)
		if acked {
			h.markReachable()
		} else {
			h.markUnreachable()
			if !h.waitForNATInvitationAck() {
				return // stopped
			}
			h.markReachable()
		}

		select {
		case <-h.stop.Chan():
			return
		case <-h.tick.Ticks():
		}
	}
}

// nextPing signs a fresh ping with the next nonce and registers its ack
// event with the owning transport, so the receive pipeline resolves it the
// moment the matching Ack arrives.
func (h *healthSupervisor) nextPing() (data []byte, ack *event, err error) {
	h.nonce++
	msg := encodePing(h.ourAddress, h.nonce)
	sig, err := h.signer.Sign(msg)
	if err != nil {
		return nil, nil, err
	}
	signed := append(msg, sig...)
	return append([]byte{tagPing}, signed...), h.registerAck(outboundEchohash(signed, h.dest)), nil
}

// pingWithRetries sends one signed Ping up to retries times in total at the
// given spacing, returning true the moment its ack arrives.
func (h *healthSupervisor) pingWithRetries(retries int, spacing time.Duration) bool {
	data, ack, err := h.nextPing()
	if err != nil {
		log.Errorf("health: signing ping for %s: %v", h.dest, err)
		return false
	}

	for i := 0; i < retries; i++ {
		endpoint, err := h.discovery.lookup(h.dest, h.discover)
		if err == nil {
			_ = h.datagram.Send(h.ourAddress, endpoint, data)
		}

		select {
		case <-h.stop.Chan():
			return false
		case <-ack.Chan():
			return true
		case <-time.After(spacing):
		}
	}
	return false
}

// waitForNATInvitationAck keeps sending fresh pings indefinitely at
// nat_invitation_timeout spacing, the NAT-traversal carve-out, until one is
// acknowledged (returns true) or global stop fires (returns false). An ack
// for anything else from this peer counts too: the receive pipeline sets
// healthy directly on any inbound ack from the destination.
func (h *healthSupervisor) waitForNATInvitationAck() bool {
	for {
		data, ack, err := h.nextPing()
		if err != nil {
			log.Errorf("health: signing ping for %s: %v", h.dest, err)
			ack = newEvent() // never fires; fall back to spacing + healthy
			data = nil
		}
		if data != nil {
			endpoint, lookupErr := h.discovery.lookup(h.dest, h.discover)
			if lookupErr == nil {
				_ = h.datagram.Send(h.ourAddress, endpoint, data)
			}
		}

		select {
		case <-h.stop.Chan():
			return false
		case <-ack.Chan():
			return true
		case <-h.healthy.Chan():
			return true
		case <-time.After(h.cfg.NatInvitationTimeout):
		}
	}
}

// markReachable transitions to REACHABLE, clears unhealthy and sets
// healthy. Called from the receive pipeline when a Pong/Ack for this
// destination arrives.
func (h *healthSupervisor) markReachable() {
	h.mu.Lock()
	h.state = NodeReachable
	h.mu.Unlock()
	h.unhealthy.Clear()
	h.healthy.Set()
}

func (h *healthSupervisor) markUnreachable() {
	h.mu.Lock()
	h.state = NodeUnreachable
	h.mu.Unlock()
	h.healthy.Clear()
	h.unhealthy.Set()
}

// State returns the supervisor's current view of the destination.
func (h *healthSupervisor) State() NodeNetworkState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// randomizedRecoverySleep spreads reconnection load after an
// unhealthy-to-healthy transition: each waiter sleeps a random fraction of
// a second before resuming, so a freshly recovered peer is not stormed by
// every queue at once.
func randomizedRecoverySleep(rng *rand.Rand) {
	time.Sleep(time.Duration(rng.Int63n(int64(time.Second))))
}

// encodePing builds the minimal wire form of a Ping: sender address and
// nonce. The full message codec is out of scope; this is the slice the
// signer signs over.
func encodePing(sender common.Address, nonce uint64) []byte {
	buf := make([]byte, 0, len(sender)+8)
	buf = append(buf, sender.Bytes()...)
	nonceBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		nonceBytes[i] = byte(nonce >> (8 * uint(i)))
	}
	return append(buf, nonceBytes...)
}

