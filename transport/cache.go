package transport

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"

	"github.com/cryptobyte3/raiden/capability"
)

// cachedAck is what the ack cache stores per echohash: the endpoint the ack
// was last sent to (re-sent there unless discovery has since moved the
// peer) and the encoded ack bytes themselves.
type cachedAck struct {
	endpoint capability.Endpoint
	ackBytes []byte
	storedAt time.Time
}

// ackCache is a bounded, TTL-expiring map from inbound echohash to the ack
// already sent for it, so a duplicate inbound datagram re-sends the cached
// ack instead of reprocessing the message. BasicLRU itself only bounds
// capacity; TTL is layered on top by stamping and checking storedAt, since
// the pack's lru package has no built-in expiry.
type ackCache struct {
	mu  sync.Mutex
	lru lru.BasicLRU[common.Hash, cachedAck]
	ttl time.Duration
}

func newAckCache(size int, ttl time.Duration) *ackCache {
	return &ackCache{lru: lru.NewBasicLRU[common.Hash, cachedAck](size), ttl: ttl}
}

func (c *ackCache) Put(echohash common.Hash, endpoint capability.Endpoint, ackBytes []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(echohash, cachedAck{endpoint: endpoint, ackBytes: ackBytes, storedAt: time.Now()})
}

// Get returns the cached ack for echohash, if present and not expired.
func (c *ackCache) Get(echohash common.Hash) (cachedAck, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(echohash)
	if !ok {
		return cachedAck{}, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.lru.Remove(echohash)
		return cachedAck{}, false
	}
	return entry, true
}

// discoveryEntry is what the discovery cache stores per address.
type discoveryEntry struct {
	endpoint capability.Endpoint
	storedAt time.Time
}

// discoveryCache is the bounded TTL cache in front of capability.Discovery.
// Fifty entries covers every peer a node converses with at once.
type discoveryCache struct {
	mu  sync.Mutex
	lru lru.BasicLRU[common.Address, discoveryEntry]
	ttl time.Duration
}

func newDiscoveryCache(ttl time.Duration) *discoveryCache {
	return &discoveryCache{lru: lru.NewBasicLRU[common.Address, discoveryEntry](50), ttl: ttl}
}

// lookup returns addr's endpoint, serving from cache when fresh and falling
// through to discover.Get (and caching the result) otherwise.
func (d *discoveryCache) lookup(addr common.Address, discover capability.Discovery) (capability.Endpoint, error) {
	d.mu.Lock()
	entry, ok := d.lru.Get(addr)
	d.mu.Unlock()
	if ok && time.Since(entry.storedAt) <= d.ttl {
		return entry.endpoint, nil
	}

	endpoint, err := discover.Get(addr)
	if err != nil {
		return capability.Endpoint{}, err
	}

	d.mu.Lock()
	d.lru.Add(addr, discoveryEntry{endpoint: endpoint, storedAt: time.Now()})
	d.mu.Unlock()
	return endpoint, nil
}
