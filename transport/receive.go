package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptobyte3/raiden/capability"
	"github.com/cryptobyte3/raiden/utils"
)

// Message tags. The wire codec of application message bodies belongs to
// the host; these tags are the only framing this module itself owns, to
// tell an Ack or Ping apart from everything the host decodes.
const (
	tagAck byte = iota
	tagApplication
	tagPing
)

var errOversizeDatagram = errors.New("transport: datagram exceeds UDPMaxMessageSize")

// decodedAck is the parsed form of an inbound Ack.
type decodedAck struct {
	sender   common.Address
	echohash common.Hash
}

// encodeAck builds the wire bytes for Ack(sender, echohash).
func encodeAck(sender common.Address, echohash common.Hash) []byte {
	buf := make([]byte, 0, 1+len(sender)+len(echohash))
	buf = append(buf, tagAck)
	buf = append(buf, sender.Bytes()...)
	buf = append(buf, echohash.Bytes()...)
	return buf
}

func decodeAck(data []byte) (decodedAck, error) {
	if len(data) < 1+common.AddressLength+common.HashLength {
		return decodedAck{}, fmt.Errorf("transport: short ack datagram")
	}
	offset := 1
	var sender common.Address
	copy(sender[:], data[offset:offset+common.AddressLength])
	offset += common.AddressLength
	var echohash common.Hash
	copy(echohash[:], data[offset:offset+common.HashLength])
	return decodedAck{sender: sender, echohash: echohash}, nil
}

// Receive is the transport's sole inbound entry point: whatever hands this
// module raw datagrams (an external DatagramTransport implementation) calls
// this once per received packet.
func (t *Transport) Receive(ctx context.Context, raw []byte) error {
	if len(raw) > t.cfg.UDPMaxMessageSize {
		return errOversizeDatagram
	}
	if len(raw) == 0 {
		return fmt.Errorf("transport: empty datagram")
	}

	switch raw[0] {
	case tagAck:
		ack, err := decodeAck(raw)
		if err != nil {
			return err
		}
		t.resolveAck(ack)
		return nil

	case tagApplication:
		return t.receiveApplicationMessage(ctx, raw[1:])

	case tagPing:
		return t.receivePing(raw[1:])

	default:
		return fmt.Errorf("transport: unknown message tag %d", raw[0])
	}
}

// resolveAck looks up the pending send by echo, resolves it, and marks the
// sender's health supervisor reachable. Pings are unordered, so a
// higher-nonce ack may arrive first; any ack at all is evidence of
// liveness.
func (t *Transport) resolveAck(ack decodedAck) {
	t.mu.Lock()
	p, ok := t.pendingAcks[ack.echohash]
	if ok {
		delete(t.pendingAcks, ack.echohash)
	}
	health, hasHealth := t.healths[ack.sender]
	t.mu.Unlock()

	if ok {
		p.ack.Set()
	}
	if hasHealth {
		health.markReachable()
	}
}

// receivePing acknowledges a peer's keepalive. Pings are unordered and never
// touch a send queue: the ack goes straight out, so a peer probing us while
// one of our own queues is mid-backoff still gets an answer. Signature
// verification of the ping is the signing capability's concern, not this
// layer's.
func (t *Transport) receivePing(payload []byte) error {
	if len(payload) < common.AddressLength+8 {
		return fmt.Errorf("transport: short ping datagram")
	}
	var sender common.Address
	copy(sender[:], payload[:common.AddressLength])

	echohash := inboundEchohash(payload, t.ourAddress)
	ackBytes := encodeAck(t.ourAddress, echohash)
	endpoint, err := t.discoveryCache.lookup(sender, t.discover)
	if err != nil {
		return err
	}
	return t.datagram.Send(t.ourAddress, endpoint, ackBytes)
}

// receiveApplicationMessage handles a signed application message: re-emit
// the cached ack for a duplicate, otherwise dispatch to the host, and
// silently drop anything the host rejects with a protocol-violation
// sentinel.
func (t *Transport) receiveApplicationMessage(ctx context.Context, payload []byte) error {
	msg, err := t.decode(payload)
	if err != nil {
		return err
	}

	echohash := inboundEchohash(payload, t.ourAddress)

	if cached, ok := t.inboundAcks.Get(echohash); ok {
		endpoint, discErr := t.discoveryCache.lookup(msg.Sender(), t.discover)
		if discErr == nil {
			_ = t.datagram.Send(t.ourAddress, endpoint, cached.ackBytes)
		} else {
			_ = t.datagram.Send(t.ourAddress, cached.endpoint, cached.ackBytes)
		}
		return nil
	}

	err = t.host.OnMessage(ctx, msg, echohash)
	if err != nil {
		if capability.IsDropSilently(err) {
			log.Debugf("transport: dropping message from %s: %v", utils.APex(msg.Sender()), err)
			return nil
		}
		return err
	}

	ackBytes := encodeAck(t.ourAddress, echohash)
	endpoint, discErr := t.discoveryCache.lookup(msg.Sender(), t.discover)
	if discErr != nil {
		// An unknown sender address is swallowed: the message stays unacked
		// and uncached, so the peer's retransmission reaches the host again.
		if errors.Is(discErr, capability.ErrUnknownAddress) {
			log.Debugf("transport: no endpoint to ack %s: %v", utils.APex(msg.Sender()), discErr)
			return nil
		}
		return discErr
	}
	t.inboundAcks.Put(echohash, endpoint, ackBytes)
	return t.datagram.Send(t.ourAddress, endpoint, ackBytes)
}
