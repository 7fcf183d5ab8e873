package qmap

// hashIter walks the buckets in index order and the chain entries of
// each bucket in insertion order. The node it currently exposes is
// pinned with one extra reference, so a concurrent Remove cannot
// destroy it out from under the caller; destruction is deferred until
// the cursor moves past the node or is closed.
//
// A removed-but-still-pinned node still passes the liveness check below
// and may be surfaced by a later Next. That relaxation is deliberate:
// removal only drops the table's reference, not the cursor's.
type hashIter[V any] struct {
	t      *Hashtable[V]
	bucket int      // index of the pinned node's bucket, or scan start
	node   *node[V] // pinned node, nil when fresh or exhausted
}

// Iter returns a cursor positioned before the first entry.
func (t *Hashtable[V]) Iter() Iterator[V] {
	return &hashIter[V]{t: t}
}

// Next advances to the next live node, pins it, and only then releases
// the previous pin through the ordinary dereference path. Only one
// bucket lock is ever held at a time.
func (it *hashIter[V]) Next() (string, V, bool) {
	t := it.t

	var (
		found       *node[V]
		foundBucket int
		key         string
		value       V
	)

	resume := it.node != nil
	for b := it.bucket; b < len(t.buckets) && found == nil; b++ {
		bk := &t.buckets[b]
		bk.mu.Lock()

		start := 0
		if resume {
			// Pick up immediately after the pinned node in its
			// own chain.
			for i, n := range bk.chain {
				if n == it.node {
					start = i + 1
					break
				}
			}
			resume = false
		}

		for _, n := range bk.chain[start:] {
			if n.refcount > 0 {
				n.refcount++
				found = n
				foundBucket = b
				key = n.key
				value = n.value
				break
			}
		}
		bk.mu.Unlock()
	}

	it.release()

	if found == nil {
		it.bucket = len(t.buckets)
		var zero V
		return "", zero, false
	}

	it.node = found
	it.bucket = foundBucket
	return key, value, true
}

// Close releases the pin, if any. The pinned node is destroyed here if
// the cursor held its last reference.
func (it *hashIter[V]) Close() {
	it.release()
	it.bucket = len(it.t.buckets)
}

// release drops the current pin under the pinned node's own bucket
// lock, delivering any resulting DELETED notifications after unlock.
func (it *hashIter[V]) release() {
	if it.node == nil {
		return
	}
	b := &it.t.buckets[it.bucket]
	b.mu.Lock()
	p := it.t.derefLocked(b, it.node)
	b.mu.Unlock()
	p.deliver()
	it.node = nil
}
