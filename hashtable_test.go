package qmap

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
)

func TestNewHashtableBucketCount(t *testing.T) {
	tests := []struct {
		hint    int
		buckets int
	}{
		{0, 8},   // floor order is 3
		{1, 8},
		{5, 8},   // the documented end-to-end sizing
		{7, 8},
		{8, 16},  // 4 significant bits
		{100, 128},
		{1000, 1024},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("hint=%d", tt.hint), func(t *testing.T) {
			m := NewHashtable[int](tt.hint)
			if len(m.buckets) != tt.buckets {
				t.Errorf("bucket count = %d, want %d", len(m.buckets), tt.buckets)
			}
		})
	}
}

func TestPutGet(t *testing.T) {
	m := NewHashtable[int](16)

	m.Put("key1", 100)
	m.Put("key2", 200)

	val, ok := m.Get("key1")
	if !ok || val != 100 {
		t.Errorf("Get(key1) = (%d, %v), want (100, true)", val, ok)
	}

	val, ok = m.Get("key2")
	if !ok || val != 200 {
		t.Errorf("Get(key2) = (%d, %v), want (200, true)", val, ok)
	}

	if _, ok = m.Get("nonexistent"); ok {
		t.Error("Get(nonexistent) should report absence")
	}

	if !m.Has("key1") || m.Has("nope") {
		t.Error("Has disagrees with Get")
	}
}

func TestPutReplaceKeepsOneEntry(t *testing.T) {
	m := NewHashtable[int](8)

	m.Put("k", 1)
	m.Put("k", 2)

	if val, _ := m.Get("k"); val != 2 {
		t.Errorf("Get(k) = %d, want 2", val)
	}
	if count := m.Count(); count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestRemove(t *testing.T) {
	m := NewHashtable[int](8)

	if m.Remove("absent") {
		t.Error("Remove(absent) = true, want false")
	}
	if count := m.Count(); count != 0 {
		t.Errorf("Count() after no-op remove = %d, want 0", count)
	}

	m.Put("k", 1)
	if !m.Remove("k") {
		t.Error("Remove(k) = false, want true")
	}
	if count := m.Count(); count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
	if _, ok := m.Get("k"); ok {
		t.Error("k should be gone after Remove")
	}
}

type notifyRecord struct {
	event    Event
	key      string
	oldValue int
	newValue int
}

func recordNotifies(log *[]notifyRecord) NotifyFunc[int] {
	return func(event Event, key string, oldValue, newValue int, _ any) {
		*log = append(*log, notifyRecord{event, key, oldValue, newValue})
	}
}

func TestInsertReplaceNotifications(t *testing.T) {
	m := NewHashtable[int](8)

	var log []notifyRecord
	if err := m.NotifyAddGlobal(recordNotifies(&log), EventInserted|EventReplaced, nil); err != nil {
		t.Fatal(err)
	}
	var freed []notifyRecord
	if err := m.NotifyAddGlobal(recordNotifies(&freed), EventFree, nil); err != nil {
		t.Fatal(err)
	}

	m.Put("x", 1)
	if len(log) != 1 {
		t.Fatalf("after insert, %d notifications, want 1", len(log))
	}
	if got, want := log[0], (notifyRecord{EventInserted, "x", 0, 1}); got != want {
		t.Errorf("insert notification = %+v, want %+v", got, want)
	}
	if len(freed) != 0 {
		t.Errorf("FREE fired on insert: %+v", freed)
	}

	m.Put("x", 2)
	if len(log) != 2 {
		t.Fatalf("after replace, %d notifications, want 2", len(log))
	}
	if got, want := log[1], (notifyRecord{EventReplaced, "x", 1, 2}); got != want {
		t.Errorf("replace notification = %+v, want %+v", got, want)
	}
	// The FREE hook sees the old value so it can be reclaimed.
	if len(freed) != 1 || freed[0].event != EventFree || freed[0].oldValue != 1 {
		t.Errorf("FREE on replace = %+v, want one EventFree with oldValue 1", freed)
	}
}

func TestRemoveNotifications(t *testing.T) {
	m := NewHashtable[int](8)

	var log []notifyRecord
	if err := m.NotifyAddGlobal(recordNotifies(&log), EventDeleted|EventFree, nil); err != nil {
		t.Fatal(err)
	}

	m.Put("x", 7)
	m.Remove("x")

	// One DELETED plus the injected FREE, both carrying the removed
	// value as oldValue.
	if len(log) != 2 {
		t.Fatalf("%d notifications, want 2 (deleted + free): %+v", len(log), log)
	}
	if log[0].event != EventDeleted || log[0].oldValue != 7 {
		t.Errorf("first delivery = %+v, want DELETED with oldValue 7", log[0])
	}
	if log[1].event != EventFree || log[1].oldValue != 7 {
		t.Errorf("second delivery = %+v, want FREE with oldValue 7", log[1])
	}
}

func TestPerKeyNotifier(t *testing.T) {
	m := NewHashtable[int](8)

	var log []notifyRecord
	fn := recordNotifies(&log)

	if err := m.NotifyAdd("absent", fn, EventReplaced, nil); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("NotifyAdd on absent key = %v, want ErrKeyNotFound", err)
	}

	m.Put("a", 1)
	m.Put("b", 1)
	if err := m.NotifyAdd("a", fn, EventReplaced, nil); err != nil {
		t.Fatal(err)
	}

	m.Put("b", 2) // other key, must not fire
	m.Put("a", 2)
	if len(log) != 1 || log[0].key != "a" {
		t.Fatalf("per-key notifier log = %+v, want exactly one delivery for a", log)
	}

	if err := m.NotifyRemove("a", fn, EventReplaced, false, nil); err != nil {
		t.Fatal(err)
	}
	m.Put("a", 3)
	if len(log) != 1 {
		t.Errorf("notifier fired after removal: %+v", log)
	}

	if err := m.NotifyRemove("a", fn, EventReplaced, false, nil); !errors.Is(err, ErrNotifierNotFound) {
		t.Errorf("second NotifyRemove = %v, want ErrNotifierNotFound", err)
	}
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	m := NewHashtable[int](8)
	fn := NotifyFunc[int](func(Event, string, int, int, any) {})

	if err := m.NotifyAddGlobal(fn, EventInserted, "ud"); err != nil {
		t.Fatal(err)
	}
	if err := m.NotifyAddGlobal(fn, EventInserted, "ud"); !errors.Is(err, ErrNotifierExists) {
		t.Errorf("duplicate global registration = %v, want ErrNotifierExists", err)
	}

	m.Put("k", 1)
	if err := m.NotifyAdd("k", fn, EventDeleted, "ud"); err != nil {
		t.Fatal(err)
	}
	if err := m.NotifyAdd("k", fn, EventDeleted, "ud"); !errors.Is(err, ErrNotifierExists) {
		t.Errorf("duplicate per-key registration = %v, want ErrNotifierExists", err)
	}
}

func TestSingleFreeNotifierPerScope(t *testing.T) {
	m := NewHashtable[int](8)
	a := NotifyFunc[int](func(Event, string, int, int, any) {})
	b := NotifyFunc[int](func(Event, string, int, int, any) {})

	if err := m.NotifyAddGlobal(a, EventFree, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.NotifyAddGlobal(b, EventFree, nil); !errors.Is(err, ErrNotifierExists) {
		t.Errorf("second global FREE registration = %v, want ErrNotifierExists", err)
	}

	// The per-key scope has its own FREE slot, independent of the
	// global one.
	m.Put("k", 1)
	if err := m.NotifyAdd("k", a, EventFree, nil); err != nil {
		t.Errorf("per-key FREE registration failed: %v", err)
	}
	if err := m.NotifyAdd("k", b, EventFree, nil); !errors.Is(err, ErrNotifierExists) {
		t.Errorf("second per-key FREE registration = %v, want ErrNotifierExists", err)
	}
}

func TestReentrantCallback(t *testing.T) {
	m := NewHashtable[int](8)

	// Callbacks run under no lock, so they may call back into the map,
	// including the same bucket.
	err := m.NotifyAddGlobal(func(event Event, key string, _, newValue int, _ any) {
		if event == EventInserted && key == "trigger" {
			m.Put("echo", newValue*10)
			if _, ok := m.Get("trigger"); !ok {
				t.Error("reentrant Get(trigger) failed")
			}
		}
	}, EventInserted, nil)
	if err != nil {
		t.Fatal(err)
	}

	m.Put("trigger", 4)

	if val, ok := m.Get("echo"); !ok || val != 40 {
		t.Errorf("Get(echo) = (%d, %v), want (40, true)", val, ok)
	}
	if count := m.Count(); count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestDestroyDeliversDeleted(t *testing.T) {
	m := NewHashtable[int](8)

	deleted := make(map[string]int)
	err := m.NotifyAddGlobal(func(event Event, key string, oldValue, _ int, _ any) {
		if event == EventDeleted {
			deleted[key] = oldValue
		}
	}, EventDeleted, nil)
	if err != nil {
		t.Fatal(err)
	}

	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)
	m.Destroy()

	want := map[string]int{"a": 1, "b": 2, "c": 3}
	if len(deleted) != len(want) {
		t.Fatalf("DELETED fired for %d keys (%v), want %d", len(deleted), deleted, len(want))
	}
	for k, v := range want {
		if deleted[k] != v {
			t.Errorf("deleted[%s] = %d, want %d", k, deleted[k], v)
		}
	}
	if count := m.Count(); count != 0 {
		t.Errorf("Count() after Destroy = %d, want 0", count)
	}
}

func TestEndToEndScenario(t *testing.T) {
	m := NewHashtable[int](5)
	if len(m.buckets) != 8 {
		t.Fatalf("capacity hint 5 built %d buckets, want 8", len(m.buckets))
	}

	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("a", 3)

	if count := m.Count(); count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
	if val, _ := m.Get("a"); val != 3 {
		t.Errorf("Get(a) = %d, want 3", val)
	}
	if val, _ := m.Get("b"); val != 2 {
		t.Errorf("Get(b) = %d, want 2", val)
	}

	collected := make(map[string]int)
	it := m.Iter()
	defer it.Close()
	for {
		key, value, ok := it.Next()
		if !ok {
			break
		}
		collected[key] = value
	}

	want := map[string]int{"a": 3, "b": 2}
	if len(collected) != len(want) {
		t.Fatalf("iteration collected %v, want %v", collected, want)
	}
	for k, v := range want {
		if collected[k] != v {
			t.Errorf("collected[%s] = %d, want %d", k, collected[k], v)
		}
	}
}

func TestWithMurmurHasher(t *testing.T) {
	m := NewHashtable[int](64, WithHasher(Murmur3Hasher))

	for i := 0; i < 200; i++ {
		m.Put(fmt.Sprintf("key-%d", i), i)
	}
	if count := m.Count(); count != 200 {
		t.Fatalf("Count() = %d, want 200", count)
	}
	for i := 0; i < 200; i++ {
		if val, ok := m.Get(fmt.Sprintf("key-%d", i)); !ok || val != i {
			t.Fatalf("Get(key-%d) = (%d, %v), want (%d, true)", i, val, ok, i)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := NewHashtable[int](256, WithLogger(hclog.NewNullLogger()))

	const (
		goroutines = 8
		perG       = 200
	)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				key := fmt.Sprintf("g%d-key%d", g, i)
				m.Put(key, i)
				if val, ok := m.Get(key); !ok || val != i {
					t.Errorf("Get(%s) = (%d, %v), want (%d, true)", key, val, ok, i)
				}
			}
		}(g)
	}
	wg.Wait()

	if count := m.Count(); count != goroutines*perG {
		t.Errorf("Count() = %d, want %d", count, goroutines*perG)
	}

	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				if !m.Remove(fmt.Sprintf("g%d-key%d", g, i)) {
					t.Errorf("Remove(g%d-key%d) = false, want true", g, i)
				}
			}
		}(g)
	}
	wg.Wait()

	if count := m.Count(); count != 0 {
		t.Errorf("Count() = %d after removal, want 0", count)
	}
}

func TestStats(t *testing.T) {
	m := NewHashtable[int](5)

	m.Put("a", 1)
	m.Put("b", 2)
	_ = m.NotifyAddGlobal(NotifyFunc[int](func(Event, string, int, int, any) {}), EventInserted, nil)
	_ = m.NotifyAdd("a", NotifyFunc[int](func(Event, string, int, int, any) {}), EventDeleted, nil)

	s := m.Stats()
	if s.Entries != 2 {
		t.Errorf("Stats.Entries = %d, want 2", s.Entries)
	}
	if s.Buckets != 8 {
		t.Errorf("Stats.Buckets = %d, want 8", s.Buckets)
	}
	if s.LongestChain < 1 {
		t.Errorf("Stats.LongestChain = %d, want >= 1", s.LongestChain)
	}
	if s.Notifiers != 2 {
		t.Errorf("Stats.Notifiers = %d, want 2", s.Notifiers)
	}
}
