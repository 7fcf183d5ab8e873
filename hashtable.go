package qmap

import (
	"sync"

	"github.com/hashicorp/go-hclog"
)

// node is one stored entry. Its reference count is the number of
// logical holders keeping it alive: one for table membership plus one
// per iterator currently pinning it. The count, the key/value fields
// and the private notifier list are all guarded by the owning bucket's
// lock. A node sits in a bucket chain iff its count is >= 1 and is
// destroyed exactly when the count reaches 0.
type node[V any] struct {
	key       string
	value     V
	refcount  int32
	notifiers notifierList[V]
}

// bucket is an independently locked chain of nodes sharing one hash
// index. Chain order is insertion order; it is a scan order, not a
// correctness invariant.
type bucket[V any] struct {
	mu    sync.Mutex
	chain []*node[V]
}

func (b *bucket[V]) findLocked(key string) *node[V] {
	for _, n := range b.chain {
		if n.key == key {
			return n
		}
	}
	return nil
}

func (b *bucket[V]) unlinkLocked(n *node[V]) {
	for i, c := range b.chain {
		if c == n {
			b.chain = append(b.chain[:i], b.chain[i+1:]...)
			return
		}
	}
}

// Hashtable is a concurrently accessed map backing with a fixed number
// of power-of-two buckets, each with its own lock. It never rehashes.
//
// Lock ordering: if you need a bucket lock and countMu, always take the
// bucket lock first and never take a bucket lock while holding countMu.
// notifyMu may be taken while a bucket lock is held, never the reverse.
//
// @design QD-0103
type Hashtable[V any] struct {
	buckets []bucket[V]
	order   uint32
	hasher  Hasher
	logger  hclog.Logger

	countMu sync.Mutex
	count   int

	notifyMu  sync.Mutex
	notifiers notifierList[V]
}

var _ Map[any] = (*Hashtable[any])(nil)

// MinOrder is the smallest bucket order a table is created with,
// yielding 8 buckets.
const MinOrder = 3

// orderFor derives the bucket order from a capacity hint: the number of
// significant bits in the hint, floored at MinOrder.
func orderFor(capacityHint int) uint32 {
	order := uint32(0)
	for n := capacityHint; n > 0; n >>= 1 {
		order++
	}
	if order < MinOrder {
		order = MinOrder
	}
	return order
}

// NewHashtable creates a hash table sized for capacityHint entries. The
// hint only influences the bucket count, which is fixed for the life of
// the table.
func NewHashtable[V any](capacityHint int, opts ...Option) *Hashtable[V] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	order := orderFor(capacityHint)
	t := &Hashtable[V]{
		buckets: make([]bucket[V], 1<<order),
		order:   order,
		hasher:  cfg.hasher,
		logger:  cfg.logger,
	}
	t.logger.Debug("hashtable created", "order", order, "buckets", len(t.buckets))
	return t
}

func (t *Hashtable[V]) bucketFor(key string) *bucket[V] {
	return &t.buckets[foldHash(t.hasher(key), t.order)]
}

// Put inserts or replaces. On insert the new node is appended to its
// chain tail with one reference (table membership). On replace the
// node's key and value are overwritten in place, so existing pins keep
// pointing at the same node; the snapshot then carries the old key and
// value so FREE notifiers can reclaim them.
func (t *Hashtable[V]) Put(key string, value V) {
	b := t.bucketFor(key)
	b.mu.Lock()

	n := b.findLocked(key)
	if n == nil {
		n = &node[V]{key: key, value: value, refcount: 1}
		b.chain = append(b.chain, n)

		t.countMu.Lock()
		t.count++
		t.countMu.Unlock()

		p := &pending[V]{
			snap:     t.snapshotLocked(n, EventInserted),
			key:      n.key,
			newValue: n.value,
		}
		b.mu.Unlock()

		t.logger.Trace("put insert", "key", key)
		p.deliver()
		return
	}

	oldKey, oldValue := n.key, n.value
	n.key = key
	n.value = value
	p := &pending[V]{
		snap:     t.snapshotLocked(n, EventReplaced),
		key:      oldKey,
		oldValue: oldValue,
		newValue: value,
	}
	b.mu.Unlock()

	t.logger.Trace("put replace", "key", key)
	p.deliver()
}

// Get returns the value stored under key. The value is captured while
// the bucket lock is held so the node never has to leave the lock.
func (t *Hashtable[V]) Get(key string) (V, bool) {
	b := t.bucketFor(key)
	b.mu.Lock()
	if n := b.findLocked(key); n != nil {
		v := n.value
		b.mu.Unlock()
		return v, true
	}
	b.mu.Unlock()
	var zero V
	return zero, false
}

// Has reports whether key has an entry.
func (t *Hashtable[V]) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

// Remove drops the table's reference on the entry for key. The node is
// destroyed immediately unless an iterator still pins it, in which case
// destruction (and its DELETED delivery) is deferred to the last
// release. The aggregate count drops either way.
func (t *Hashtable[V]) Remove(key string) bool {
	b := t.bucketFor(key)
	b.mu.Lock()

	n := b.findLocked(key)
	if n == nil {
		b.mu.Unlock()
		return false
	}
	p := t.derefLocked(b, n)
	b.mu.Unlock()

	t.countMu.Lock()
	t.count--
	t.countMu.Unlock()

	p.deliver()

	t.logger.Trace("remove", "key", key)
	return true
}

// derefLocked releases one reference on n. On the transition to zero it
// builds the DELETED snapshot, drops the node's private notifiers and
// unlinks it from the chain, returning the delivery for the caller to
// fire once the bucket lock is released. The bucket lock must be held.
func (t *Hashtable[V]) derefLocked(b *bucket[V], n *node[V]) *pending[V] {
	n.refcount--
	if n.refcount > 0 {
		return nil
	}

	p := &pending[V]{
		snap:     t.snapshotLocked(n, EventDeleted),
		key:      n.key,
		oldValue: n.value,
	}
	n.notifiers.clear()
	b.unlinkLocked(n)
	return p
}

// snapshotLocked merges n's private notifiers with the table-wide ones
// for event. The caller holds n's bucket lock; the global registry is
// read under notifyMu (bucket lock before notifyMu is the permitted
// order).
func (t *Hashtable[V]) snapshotLocked(n *node[V], event Event) []snapEntry[V] {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	return buildSnapshot(&n.notifiers, &t.notifiers, event)
}

// Count returns the number of entries under the count lock.
func (t *Hashtable[V]) Count() int {
	t.countMu.Lock()
	defer t.countMu.Unlock()
	return t.count
}

// NotifyAdd registers a per-key notifier on the node currently backing
// key. The registration lives and dies with the node: a later Remove or
// Destroy drops it.
func (t *Hashtable[V]) NotifyAdd(key string, fn NotifyFunc[V], events Event, userData any) error {
	b := t.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.findLocked(key)
	if n == nil {
		return ErrKeyNotFound.WithDetails(key)
	}
	return n.notifiers.add(fn, events, userData)
}

// NotifyAddGlobal registers a notifier that fires for every key.
func (t *Hashtable[V]) NotifyAddGlobal(fn NotifyFunc[V], events Event, userData any) error {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	return t.notifiers.add(fn, events, userData)
}

// NotifyRemove deletes matching per-key registrations for key.
func (t *Hashtable[V]) NotifyRemove(key string, fn NotifyFunc[V], events Event, matchUserData bool, userData any) error {
	b := t.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.findLocked(key)
	if n == nil {
		return ErrKeyNotFound.WithDetails(key)
	}
	return n.notifiers.remove(fn, events, matchUserData, userData)
}

// NotifyRemoveGlobal deletes matching global-scope registrations.
func (t *Hashtable[V]) NotifyRemoveGlobal(fn NotifyFunc[V], events Event, matchUserData bool, userData any) error {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	return t.notifiers.remove(fn, events, matchUserData, userData)
}

// Destroy releases the table's reference on every node, bucket by
// bucket, delivering each bucket's DELETED/FREE notifications after
// that bucket's lock is dropped. Nodes still pinned by an iterator
// survive until their pin is released; the count is zeroed regardless.
// Global notifiers are dropped last.
func (t *Hashtable[V]) Destroy() {
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		chain := make([]*node[V], len(b.chain))
		copy(chain, b.chain)

		var deliveries []*pending[V]
		for _, n := range chain {
			if p := t.derefLocked(b, n); p != nil {
				deliveries = append(deliveries, p)
			}
		}
		b.mu.Unlock()

		for _, p := range deliveries {
			p.deliver()
		}
	}

	t.countMu.Lock()
	t.count = 0
	t.countMu.Unlock()

	t.notifyMu.Lock()
	t.notifiers.clear()
	t.notifyMu.Unlock()

	t.logger.Debug("hashtable destroyed")
}

// Stats is a point-in-time view of a backing's shape, consumed by the
// metrics Collector.
type Stats struct {
	// Entries is the logical entry count.
	Entries int
	// Buckets is the number of chains (1 for the sorted backing).
	Buckets int
	// LongestChain is the longest bucket chain observed.
	LongestChain int
	// Notifiers counts registrations across the global and per-key
	// scopes.
	Notifiers int
}

// Stats walks the buckets one lock at a time; the result is a loose
// snapshot, not a consistent cut.
func (t *Hashtable[V]) Stats() Stats {
	s := Stats{Buckets: len(t.buckets), Entries: t.Count()}

	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		if len(b.chain) > s.LongestChain {
			s.LongestChain = len(b.chain)
		}
		for _, n := range b.chain {
			s.Notifiers += n.notifiers.len()
		}
		b.mu.Unlock()
	}

	t.notifyMu.Lock()
	s.Notifiers += t.notifiers.len()
	t.notifyMu.Unlock()
	return s
}
