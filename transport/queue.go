package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/capability"
)

// queuedMessage is one entry on a send queue: the already-encoded bytes, the
// echohash an incoming Ack is matched against, and the future send_async
// resolves once the message is acknowledged or the transport is stopped.
// The destination endpoint is looked up afresh before every transmission.
type queuedMessage struct {
	echohash common.Hash
	encoded  []byte
	ack      *event
	result   chan bool
}

// sendQueue drains its pending messages strictly in enqueue order: the head
// is never popped before its ack arrives, so wire-emission order for this
// (destination, token) pair equals enqueue order.
type sendQueue struct {
	mu      sync.Mutex
	pending []*queuedMessage
	newItem *event

	stop       *event
	health     *healthSupervisor
	datagram   capability.DatagramTransport
	discovery  *discoveryCache
	discover   capability.Discovery
	dest       common.Address
	ourAddress common.Address
	cfg        Config
	rng        *rand.Rand
}

func newSendQueue(
	ourAddress, dest common.Address,
	cfg Config,
	datagram capability.DatagramTransport,
	discovery *discoveryCache,
	discover capability.Discovery,
	health *healthSupervisor,
	stop *event,
) *sendQueue {
	return &sendQueue{
		newItem:    newEvent(),
		stop:       stop,
		health:     health,
		datagram:   datagram,
		discovery:  discovery,
		discover:   discover,
		dest:       dest,
		ourAddress: ourAddress,
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(int64(dest.Big().Uint64()) + 1)),
	}
}

// enqueue appends a message. ack and result are provided by the caller
// (package Transport): ack is also registered centrally for fast
// echohash -> event lookup on the receive path, and result is the future a
// repeated send_async of the same message hands back unchanged.
func (q *sendQueue) enqueue(echohash common.Hash, encoded []byte, ack *event, result chan bool) {
	msg := &queuedMessage{echohash: echohash, encoded: encoded, ack: ack, result: result}

	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()

	q.newItem.Set()
}

// run is the queue's single consumer goroutine.
func (q *sendQueue) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		head := q.waitForHead()
		if head == nil {
			return // stopped
		}

		if !q.drainHead(head) {
			return // stopped
		}
	}
}

func (q *sendQueue) waitForHead() *queuedMessage {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			head := q.pending[0]
			q.mu.Unlock()
			return head
		}
		q.newItem.Clear()
		q.mu.Unlock()

		select {
		case <-q.stop.Chan():
			return nil
		case <-q.newItem.Chan():
		}
	}
}

// drainHead drives one message to acknowledgement, popping it once acked.
// Returns false if the queue was stopped instead.
func (q *sendQueue) drainHead(head *queuedMessage) bool {
	bo := newBackoff(q.cfg.RetriesBeforeBackoff, q.cfg.RetryInterval, q.cfg.MaxBackoff)
	healthy, unhealthy := q.health.Events()

	for {
		// The health flags are consulted before each transmit: a dead peer
		// gets no traffic until its supervisor sees an ack again.
		if unhealthy.IsSet() {
			select {
			case <-q.stop.Chan():
				head.result <- false
				return false
			case <-healthy.Chan():
				randomizedRecoverySleep(q.rng)
				// backoff iterator is intentionally not reset here.
			case <-head.ack.Chan():
				q.pop(head)
				head.result <- true
				return true
			}
			continue
		}

		endpoint, err := q.discovery.lookup(q.dest, q.discover)
		if err == nil {
			_ = q.datagram.Send(q.ourAddress, endpoint, head.encoded)
		}

		select {
		case <-head.ack.Chan():
			q.pop(head)
			head.result <- true
			return true

		case <-q.stop.Chan():
			head.result <- false
			return false

		case <-unhealthy.Chan():
			// pause handled at the top of the loop

		case <-time.After(bo.Next()):
			// retransmit on the next loop iteration
		}
	}
}

func (q *sendQueue) pop(head *queuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 && q.pending[0] == head {
		q.pending = q.pending[1:]
	}
}

// stopAll resolves every still-pending message's future with false, the
// last step of shutdown. A false future reads as "unacknowledged".
func (q *sendQueue) stopAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, msg := range q.pending {
		select {
		case msg.result <- false:
		default:
		}
	}
	q.pending = nil
}
