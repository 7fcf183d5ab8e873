package qmap

// Event is a bitmask of mutation categories a notifier subscribes to.
type Event uint32

const (
	// EventInserted fires when a key is stored for the first time.
	EventInserted Event = 1 << iota
	// EventReplaced fires when an existing key's value is overwritten.
	EventReplaced
	// EventDeleted fires when an entry is destroyed, either through Remove
	// or through Destroy of the whole map.
	EventDeleted
	// EventFree is a reclamation hook: it never fires on its own, but a
	// FREE-masked notifier is appended to every DELETED and REPLACED
	// delivery so the caller can release externally-owned key/value
	// resources that the map does not own. At most one FREE-masked
	// notifier may be registered per scope.
	EventFree
)

// String returns a compact textual form of the event mask, for logging.
func (e Event) String() string {
	names := [...]struct {
		bit  Event
		name string
	}{
		{EventInserted, "inserted"},
		{EventReplaced, "replaced"},
		{EventDeleted, "deleted"},
		{EventFree, "free"},
	}
	s := ""
	for _, n := range names {
		if e&n.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}
	if s == "" {
		return "none"
	}
	return s
}

// NotifyFunc is invoked after a mutation, outside of any map lock.
//
// event is the single category that fired (EventFree for reclamation
// deliveries). oldValue is the zero value of V on EventInserted. For
// EventDeleted and EventFree deliveries, newValue is the zero value.
//
// The callback may call back into the map; it runs under no lock, so the
// state it observes may already have changed again.
type NotifyFunc[V any] func(event Event, key string, oldValue, newValue V, userData any)

// Map is the abstract operation set shared by all backing implementations.
//
// @design QD-0102
type Map[V any] interface {
	// Put inserts key with value, or replaces the value of an existing
	// entry in place. It fires EventInserted or EventReplaced accordingly.
	Put(key string, value V)

	// Get returns the value stored under key.
	Get(key string) (V, bool)

	// Has reports whether key has an entry.
	Has(key string) bool

	// Remove deletes the entry for key, reporting whether one existed.
	Remove(key string) bool

	// Count returns the number of entries.
	Count() int

	// NotifyAdd registers a per-key notifier on an existing entry.
	// It returns ErrKeyNotFound if key has no entry, and
	// ErrNotifierExists for a duplicate (callback, events, userData)
	// registration or a second FREE-masked registration on the entry.
	NotifyAdd(key string, fn NotifyFunc[V], events Event, userData any) error

	// NotifyAddGlobal registers a notifier that fires for every key.
	NotifyAddGlobal(fn NotifyFunc[V], events Event, userData any) error

	// NotifyRemove deletes per-key registrations matching callback and
	// events; when matchUserData is set, userData must match as well.
	// It returns ErrNotifierNotFound if nothing matched.
	NotifyRemove(key string, fn NotifyFunc[V], events Event, matchUserData bool, userData any) error

	// NotifyRemoveGlobal deletes matching global-scope registrations.
	NotifyRemoveGlobal(fn NotifyFunc[V], events Event, matchUserData bool, userData any) error

	// Iter returns a cursor over the map. See the implementations for
	// their respective ordering and consistency guarantees.
	Iter() Iterator[V]

	// Destroy releases every entry (firing EventDeleted, plus EventFree
	// where registered, for each) and drops all notifiers. The map must
	// not be used afterwards.
	Destroy()
}

// Iterator is a cursor produced by Map.Iter.
type Iterator[V any] interface {
	// Next advances to the next entry, returning ok=false on exhaustion.
	Next() (key string, value V, ok bool)

	// Close releases any resource the cursor holds on the map. It must
	// be called when the caller abandons iteration early; calling it
	// after exhaustion is harmless.
	Close()
}
