package qmap

import (
	"reflect"
)

// notifier is one registered callback plus the events it fires on.
// Registrations are compared by callback identity, event mask and user
// data; user data values must therefore be comparable with ==.
type notifier[V any] struct {
	events   Event
	fn       NotifyFunc[V]
	userData any
}

// callbackPtr returns the identity of a callback for duplicate checks.
func callbackPtr[V any](fn NotifyFunc[V]) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// notifierList is one registration scope: either a map's global list or
// a single entry's private list. The zero value is an empty list.
//
// FREE-masked registrations sit at the tail so reclamation hooks fire
// after ordinary notifiers of the same scope; everything else is
// prepended.
type notifierList[V any] struct {
	entries []*notifier[V]
}

func (l *notifierList[V]) add(fn NotifyFunc[V], events Event, userData any) error {
	for _, f := range l.entries {
		if events&EventFree != 0 && f.events&EventFree != 0 {
			// only one free notifier per scope
			return ErrNotifierExists
		}
		if f.events == events && f.userData == userData && callbackPtr(f.fn) == callbackPtr(fn) {
			return ErrNotifierExists
		}
	}

	n := &notifier[V]{events: events, fn: fn, userData: userData}
	if events&EventFree != 0 {
		l.entries = append(l.entries, n)
	} else {
		l.entries = append([]*notifier[V]{n}, l.entries...)
	}
	return nil
}

// remove deletes every registration matching fn and events. With
// matchUserData set, userData must match as well.
func (l *notifierList[V]) remove(fn NotifyFunc[V], events Event, matchUserData bool, userData any) error {
	found := false
	kept := l.entries[:0]
	for _, f := range l.entries {
		match := f.events == events && callbackPtr(f.fn) == callbackPtr(fn)
		if match && matchUserData {
			match = f.userData == userData
		}
		if match {
			found = true
			continue
		}
		kept = append(kept, f)
	}
	l.entries = kept
	if !found {
		return ErrNotifierNotFound
	}
	return nil
}

func (l *notifierList[V]) clear() {
	l.entries = nil
}

func (l *notifierList[V]) len() int {
	return len(l.entries)
}

// snapEntry is one callback captured into a delivery snapshot, bound to
// the single event that fires it.
type snapEntry[V any] struct {
	event    Event
	fn       NotifyFunc[V]
	userData any
}

// appendSnapshot collects the entries of one scope that should fire for
// event. FREE-masked registrations are additionally injected into
// DELETED and REPLACED snapshots, carrying EventFree, so the caller can
// reclaim the old key/value that just became unreachable.
func appendSnapshot[V any](snap []snapEntry[V], l *notifierList[V], event Event) []snapEntry[V] {
	for _, f := range l.entries {
		if f.events&event != 0 {
			snap = append(snap, snapEntry[V]{event: event, fn: f.fn, userData: f.userData})
		}
		if event&(EventDeleted|EventReplaced) != 0 && f.events&EventFree != 0 {
			snap = append(snap, snapEntry[V]{event: EventFree, fn: f.fn, userData: f.userData})
		}
	}
	return snap
}

// buildSnapshot merges the per-entry scope with the global scope, in
// that order, into one private snapshot. It must be called while the
// lock guarding both lists is held; the returned slice is disconnected
// from the live registries.
func buildSnapshot[V any](perKey, global *notifierList[V], event Event) []snapEntry[V] {
	var snap []snapEntry[V]
	if perKey != nil {
		snap = appendSnapshot(snap, perKey, event)
	}
	snap = appendSnapshot(snap, global, event)
	return snap
}

// pending is one mutation's notification delivery, built under a lock
// and fired after the lock is released.
type pending[V any] struct {
	snap     []snapEntry[V]
	key      string
	oldValue V
	newValue V
}

// deliver invokes the snapshotted callbacks one at a time. It must be
// called with no map lock held: the callbacks are free to re-enter the
// map. A nil pending delivers nothing.
func (p *pending[V]) deliver() {
	if p == nil {
		return
	}
	for _, e := range p.snap {
		e.fn(e.event, p.key, p.oldValue, p.newValue, e.userData)
	}
}
