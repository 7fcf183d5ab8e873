package qmap

import (
	"sync"

	"github.com/google/btree"
	"github.com/hashicorp/go-hclog"
)

const sortedDegree = 16

// sortedEntry is one stored entry of the sorted backing. Like hash
// table nodes, an entry keeps its identity across replacement and
// carries its own notifier scope.
type sortedEntry[V any] struct {
	key       string
	value     V
	notifiers notifierList[V]
}

// Sorted is the ordered backing implementation: a B-tree keyed by
// lexicographic byte order, guarded by one table-wide lock. It trades
// the hash table's per-bucket parallelism for ordered iteration.
//
// Notification semantics are identical to the Hashtable's: snapshots
// are built under the table lock and delivered after it is released,
// so callbacks may re-enter the map.
type Sorted[V any] struct {
	mu        sync.Mutex
	tree      *btree.BTreeG[*sortedEntry[V]]
	notifiers notifierList[V]
	logger    hclog.Logger
}

var _ Map[any] = (*Sorted[any])(nil)

// NewSorted creates an empty ordered map.
func NewSorted[V any](opts ...Option) *Sorted[V] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Sorted[V]{
		tree: btree.NewG(sortedDegree, func(a, b *sortedEntry[V]) bool {
			return a.key < b.key
		}),
		logger: cfg.logger,
	}
}

func (s *Sorted[V]) getLocked(key string) (*sortedEntry[V], bool) {
	return s.tree.Get(&sortedEntry[V]{key: key})
}

// Put inserts or replaces, firing EventInserted or EventReplaced.
func (s *Sorted[V]) Put(key string, value V) {
	s.mu.Lock()

	var p *pending[V]
	if e, ok := s.getLocked(key); ok {
		oldKey, oldValue := e.key, e.value
		e.key = key
		e.value = value
		p = &pending[V]{
			snap:     buildSnapshot(&e.notifiers, &s.notifiers, EventReplaced),
			key:      oldKey,
			oldValue: oldValue,
			newValue: value,
		}
	} else {
		e := &sortedEntry[V]{key: key, value: value}
		s.tree.ReplaceOrInsert(e)
		p = &pending[V]{
			snap:     buildSnapshot(&e.notifiers, &s.notifiers, EventInserted),
			key:      key,
			newValue: value,
		}
	}
	s.mu.Unlock()

	s.logger.Trace("sorted put", "key", key)
	p.deliver()
}

// Get returns the value stored under key.
func (s *Sorted[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.getLocked(key); ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Has reports whether key has an entry.
func (s *Sorted[V]) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Remove deletes the entry for key, firing EventDeleted (and EventFree
// where registered) with the removed value.
func (s *Sorted[V]) Remove(key string) bool {
	s.mu.Lock()
	e, ok := s.tree.Delete(&sortedEntry[V]{key: key})
	var p *pending[V]
	if ok {
		p = &pending[V]{
			snap:     buildSnapshot(&e.notifiers, &s.notifiers, EventDeleted),
			key:      e.key,
			oldValue: e.value,
		}
		e.notifiers.clear()
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.logger.Trace("sorted remove", "key", key)
	p.deliver()
	return true
}

// Count returns the number of entries.
func (s *Sorted[V]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

// NotifyAdd registers a per-key notifier on an existing entry.
func (s *Sorted[V]) NotifyAdd(key string, fn NotifyFunc[V], events Event, userData any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.getLocked(key)
	if !ok {
		return ErrKeyNotFound.WithDetails(key)
	}
	return e.notifiers.add(fn, events, userData)
}

// NotifyAddGlobal registers a notifier that fires for every key.
func (s *Sorted[V]) NotifyAddGlobal(fn NotifyFunc[V], events Event, userData any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifiers.add(fn, events, userData)
}

// NotifyRemove deletes matching per-key registrations for key.
func (s *Sorted[V]) NotifyRemove(key string, fn NotifyFunc[V], events Event, matchUserData bool, userData any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.getLocked(key)
	if !ok {
		return ErrKeyNotFound.WithDetails(key)
	}
	return e.notifiers.remove(fn, events, matchUserData, userData)
}

// NotifyRemoveGlobal deletes matching global-scope registrations.
func (s *Sorted[V]) NotifyRemoveGlobal(fn NotifyFunc[V], events Event, matchUserData bool, userData any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifiers.remove(fn, events, matchUserData, userData)
}

// Destroy releases every entry, delivering DELETED/FREE notifications
// for each after the table lock is dropped, then drops all notifiers.
func (s *Sorted[V]) Destroy() {
	s.mu.Lock()
	var deliveries []*pending[V]
	s.tree.Ascend(func(e *sortedEntry[V]) bool {
		deliveries = append(deliveries, &pending[V]{
			snap:     buildSnapshot(&e.notifiers, &s.notifiers, EventDeleted),
			key:      e.key,
			oldValue: e.value,
		})
		e.notifiers.clear()
		return true
	})
	s.tree.Clear(false)
	s.notifiers.clear()
	s.mu.Unlock()

	for _, p := range deliveries {
		p.deliver()
	}
	s.logger.Debug("sorted map destroyed")
}

// Stats reports the backing's shape for the metrics Collector.
func (s *Sorted[V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Entries: s.tree.Len(), Buckets: 1, Notifiers: s.notifiers.len()}
	st.LongestChain = st.Entries
	s.tree.Ascend(func(e *sortedEntry[V]) bool {
		st.Notifiers += e.notifiers.len()
		return true
	})
	return st
}

// sortedIter is a position-based cursor: it remembers the last key it
// returned and resumes strictly after it, so it tolerates concurrent
// mutation without pinning. Entries inserted behind the cursor are not
// revisited.
type sortedIter[V any] struct {
	s       *Sorted[V]
	last    string
	started bool
	done    bool
}

// Iter returns a cursor over the entries in ascending key order.
func (s *Sorted[V]) Iter() Iterator[V] {
	return &sortedIter[V]{s: s}
}

// Next advances to the next entry in key order.
func (it *sortedIter[V]) Next() (string, V, bool) {
	if it.done {
		var zero V
		return "", zero, false
	}

	it.s.mu.Lock()
	var found *sortedEntry[V]
	pivot := &sortedEntry[V]{key: it.last}
	if !it.started {
		it.s.tree.Ascend(func(e *sortedEntry[V]) bool {
			found = e
			return false
		})
	} else {
		it.s.tree.AscendGreaterOrEqual(pivot, func(e *sortedEntry[V]) bool {
			if e.key == it.last {
				return true
			}
			found = e
			return false
		})
	}
	if found == nil {
		it.s.mu.Unlock()
		it.done = true
		var zero V
		return "", zero, false
	}
	key, value := found.key, found.value
	it.s.mu.Unlock()

	it.started = true
	it.last = key
	return key, value, true
}

// Close marks the cursor exhausted. The sorted cursor holds no
// reference on the map, so there is nothing to release.
func (it *sortedIter[V]) Close() {
	it.done = true
}
