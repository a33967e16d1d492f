package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/capability"
)

// Decoder turns a received application-message payload into the form the
// host understands. The wire codec of individual message bodies belongs to
// the host, which supplies this function.
type Decoder func(payload []byte) (capability.ApplicationMessage, error)

type queueKey struct {
	dest  common.Address
	token common.Address
}

// Transport is a reliable message layer over unreliable datagrams: one
// send queue per (destination, token), one health supervisor per
// destination, an ack cache, and the receive pipeline, all coordinated
// through a shared stop event. Construct with New, then Start before using.
type Transport struct {
	cfg        Config
	ourAddress common.Address
	signer     capability.Signer
	discover   capability.Discovery
	datagram   capability.DatagramTransport
	host       capability.MessageHost
	decode     Decoder

	discoveryCache *discoveryCache
	inboundAcks    *ackCache

	mu          sync.Mutex
	queues      map[queueKey]*sendQueue
	healths     map[common.Address]*healthSupervisor
	pendingAcks map[common.Hash]*pendingSend

	stop     *event
	started  int32
	shutdown int32
	wg       sync.WaitGroup
}

// New builds a Transport. It does not start any goroutines until Start is
// called.
func New(
	cfg Config,
	ourAddress common.Address,
	signer capability.Signer,
	discover capability.Discovery,
	datagram capability.DatagramTransport,
	host capability.MessageHost,
	decode Decoder,
) *Transport {
	return &Transport{
		cfg:            cfg,
		ourAddress:     ourAddress,
		signer:         signer,
		discover:       discover,
		datagram:       datagram,
		host:           host,
		decode:         decode,
		discoveryCache: newDiscoveryCache(cfg.CacheTTL),
		inboundAcks:    newAckCache(1024, cfg.CacheTTL),
		queues:         make(map[queueKey]*sendQueue),
		healths:        make(map[common.Address]*healthSupervisor),
		pendingAcks:    make(map[common.Hash]*pendingSend),
		stop:           newEvent(),
	}
}

// pendingSend is one outbound message awaiting its ack: the event the send
// queue (or health supervisor) waits on, and, for application messages, the
// future send_async handed its caller. Pings have no future; their ack event
// is the whole signal.
type pendingSend struct {
	ack    *event
	result chan bool
}

// registerAck returns the ack event for echohash, creating the pending entry
// if this is the first time the fingerprint is seen. Registering the same
// echohash twice yields the same event. The health supervisor registers its
// pings here; SendAsync does its own lookup in the same table.
func (t *Transport) registerAck(echohash common.Hash) *event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pendingAcks[echohash]; ok {
		return p.ack
	}
	p := &pendingSend{ack: newEvent()}
	t.pendingAcks[echohash] = p
	return p.ack
}

// Start begins accepting datagrams through the underlying
// capability.DatagramTransport. Per-peer queues and health supervisors are
// created lazily as destinations are first used.
func (t *Transport) Start() error {
	if !atomic.CompareAndSwapInt32(&t.started, 0, 1) {
		return errors.New("transport: already started")
	}
	log.Infof("transport: starting")
	return t.datagram.Start()
}

// StopAccepting implements step (1) of stop_and_wait: stop accepting new
// datagrams while queues finish their current round.
func (t *Transport) StopAccepting() {
	t.datagram.StopAccepting()
}

// StopAndWait shuts the transport down: stop accepting datagrams, signal
// every task, join them, resolve every still-pending future with false,
// and close the socket.
func (t *Transport) StopAndWait() error {
	if !atomic.CompareAndSwapInt32(&t.shutdown, 0, 1) {
		return errors.New("transport: already stopped")
	}

	t.StopAccepting()
	t.stop.Set()
	t.wg.Wait()

	t.mu.Lock()
	queues := make([]*sendQueue, 0, len(t.queues))
	for _, q := range t.queues {
		queues = append(queues, q)
	}
	t.mu.Unlock()
	for _, q := range queues {
		q.stopAll()
	}

	return t.datagram.Stop()
}

// health returns, creating if necessary, the health supervisor for dest.
func (t *Transport) health(dest common.Address) *healthSupervisor {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.healths[dest]
	if !ok {
		h = newHealthSupervisor(t.ourAddress, dest, t.cfg, t.signer, t.datagram, t.discoveryCache, t.discover, t.registerAck, t.stop)
		t.healths[dest] = h
		t.wg.Add(1)
		go h.run(&t.wg)
	}
	return h
}

// GetHealthEvents implements `get_health_events(dest) -> (healthy, unhealthy)`.
func (t *Transport) GetHealthEvents(dest common.Address) (healthy, unhealthy *event) {
	return t.health(dest).Events()
}

// NodeState reports the health supervisor's current view of dest (UNKNOWN
// until the first keepalive round settles), starting supervision on first
// contact. It is the monitoring counterpart of GetHealthEvents for callers
// that want a snapshot rather than something to wait on.
func (t *Transport) NodeState(dest common.Address) NodeNetworkState {
	return t.health(dest).State()
}

func (t *Transport) queueFor(dest, token common.Address) *sendQueue {
	key := queueKey{dest: dest, token: token}

	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[key]
	if ok {
		return q
	}

	health := t.healths[dest]
	if health == nil {
		health = newHealthSupervisor(t.ourAddress, dest, t.cfg, t.signer, t.datagram, t.discoveryCache, t.discover, t.registerAck, t.stop)
		t.healths[dest] = health
		t.wg.Add(1)
		go health.run(&t.wg)
	}

	q = newSendQueue(t.ourAddress, dest, t.cfg, t.datagram, t.discoveryCache, t.discover, health, t.stop)
	t.queues[key] = q
	t.wg.Add(1)
	go q.run(&t.wg)
	return q
}

// SendAsync implements `send_async(dest, msg) -> Future<bool>`. Sending the
// same message to the same destination while the first copy is still
// pending returns the first copy's future instead of enqueueing a
// duplicate; the echohash is the dedup fingerprint.
func (t *Transport) SendAsync(dest common.Address, msg capability.ApplicationMessage) (<-chan bool, error) {
	encoded, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	framed := append([]byte{tagApplication}, encoded...)
	if len(framed) > t.cfg.UDPMaxMessageSize {
		return nil, errOversizeDatagram
	}
	echohash := outboundEchohash(encoded, dest)

	t.mu.Lock()
	if p, ok := t.pendingAcks[echohash]; ok && p.result != nil {
		t.mu.Unlock()
		return p.result, nil
	}
	p := &pendingSend{ack: newEvent(), result: make(chan bool, 1)}
	t.pendingAcks[echohash] = p
	t.mu.Unlock()

	q := t.queueFor(dest, msg.Token())
	q.enqueue(echohash, framed, p.ack, p.result)
	return p.result, nil
}

// SendAndWait implements `send_and_wait(dest, msg, timeout)`.
func (t *Transport) SendAndWait(ctx context.Context, dest common.Address, msg capability.ApplicationMessage, timeout time.Duration) (bool, error) {
	result, err := t.SendAsync(dest, msg)
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ok := <-result:
		return ok, nil
	case <-timer.C:
		return false, errors.New("transport: send_and_wait timed out")
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
