// Package dedup implements the bounded, insertion-ordered set of recently
// seen packet keys used to collapse the same packet relayed through
// multiple gateways: a doubly-linked list for FIFO eviction order plus a
// map index for O(1) membership.
package dedup

import (
	"container/list"
	"sync"

	"github.com/austinmesh/bridger/pkg/meshpb"
)

type key struct {
	gatewayID string
	packetID  uint32
}

// Deduplicator is a FIFO-bounded set with O(1) membership testing.
// Eviction is insertion-ordered: once Capacity keys are held, the oldest is
// dropped to make room for a new one. An evicted key presented again is
// treated as new: bounded memory, eventual re-processing permitted.
type Deduplicator struct {
	mu           sync.Mutex
	capacity     int
	useGatewayID bool
	order        *list.List
	index        map[key]*list.Element
}

// New builds a Deduplicator holding at most capacity keys. When
// useGatewayID is true the key is (gatewayID, packetID); otherwise it's
// packetID alone, collapsing the same packet seen via multiple gateways.
func New(capacity int, useGatewayID bool) *Deduplicator {
	return &Deduplicator{
		capacity:     capacity,
		useGatewayID: useGatewayID,
		order:        list.New(),
		index:        make(map[key]*list.Element, capacity),
	}
}

func (d *Deduplicator) keyFor(env *meshpb.ServiceEnvelope) key {
	k := key{packetID: env.Packet.ID}
	if d.useGatewayID {
		k.gatewayID = env.GatewayID
	}
	return k
}

// IsDuplicate reports whether env's key is already present, without
// recording it.
func (d *Deduplicator) IsDuplicate(env *meshpb.ServiceEnvelope) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.index[d.keyFor(env)]
	return ok
}

// MarkProcessed records env's key, evicting the oldest entry first if the
// deduplicator is at capacity.
func (d *Deduplicator) MarkProcessed(env *meshpb.ServiceEnvelope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.markProcessedLocked(d.keyFor(env))
}

func (d *Deduplicator) markProcessedLocked(k key) {
	if _, ok := d.index[k]; ok {
		return
	}

	if d.capacity > 0 {
		for d.order.Len() >= d.capacity {
			oldest := d.order.Front()
			if oldest == nil {
				break
			}
			d.order.Remove(oldest)
			delete(d.index, oldest.Value.(key))
		}
	}

	elem := d.order.PushBack(k)
	d.index[k] = elem
}

// ShouldProcess returns true and records env's key if unseen; returns false
// if it's a duplicate.
func (d *Deduplicator) ShouldProcess(env *meshpb.ServiceEnvelope) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := d.keyFor(env)
	if _, ok := d.index[k]; ok {
		return false
	}
	d.markProcessedLocked(k)
	return true
}

// Len reports the number of keys currently held, for metrics/tests.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
