package view

import (
	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// Hash container control block field offsets (shared by Map and Set).
const (
	hashCountOff   = 0
	hashCapOff     = 4
	hashBucketsOff = 8
	hashCBSize     = 12

	hashMinBuckets = 4

	// Every entry node starts with the next-pointer of its bucket chain;
	// the key region follows the link.
	nodeNext     = 0
	nodeLinkSize = 4
)

// Map is the accessor for a dynamic hash map slot. Separate chaining:
// power-of-two bucket array of node pointers, each node individually
// allocated holding {next, key, value}. New entries are linked at the
// bucket head. Iteration order is bucket-then-chain order and changes
// across rehashes; it is deliberately unspecified.
type Map struct {
	a    *memory.Arena
	slot memory.Ptr
	key  *Ops
	val  *Ops

	keyOff   uint32
	valOff   uint32
	nodeSize uint32
}

func NewMap(a *memory.Arena, slot memory.Ptr, keyInfo, valInfo *layout.BinaryInfo) Map {
	keyOps := OpsFor(keyInfo)
	valOps := OpsFor(valInfo)
	keyOff := uint32(nodeLinkSize)
	valOff := alignUp(keyOff+keyOps.Size(), valOps.Align())
	return Map{
		a:        a,
		slot:     slot,
		key:      keyOps,
		val:      valOps,
		keyOff:   keyOff,
		valOff:   valOff,
		nodeSize: valOff + valOps.Size(),
	}
}

func (m Map) cb() memory.Ptr { return m.a.Ptr(m.slot) }

// Len returns the entry count; 0 when never allocated.
func (m Map) Len() uint32 {
	cb := m.cb()
	if cb == memory.NullPtr {
		return 0
	}
	return m.a.U32(cb + hashCountOff)
}

// Get returns the offset of the value slot stored under k.
func (m Map) Get(k Key) (memory.Ptr, bool) {
	node := m.find(k)
	if node == memory.NullPtr {
		return memory.NullPtr, false
	}
	return node + memory.Ptr(m.valOff), true
}

func (m Map) Has(k Key) bool { return m.find(k) != memory.NullPtr }

// Set writes raw value bytes under k, replacing in place when the key
// already exists (the old value's dynamic payload is freed first).
func (m Map) Set(k Key, raw []byte) error {
	if uint32(len(raw)) != m.val.Size() {
		return ErrValueSize
	}
	valOff, _, err := m.emplace(k)
	if err != nil {
		return err
	}
	copy(m.a.Bytes(valOff, m.val.Size()), raw)
	return nil
}

// Emplace returns a live value slot for k, inserting a zeroed entry when
// absent. Callers initialize structured values in place through the
// returned offset, avoiding a temporary.
func (m Map) Emplace(k Key) (memory.Ptr, error) {
	valOff, _, err := m.emplace(k)
	return valOff, err
}

// emplace finds or inserts, returning the value offset. An existing
// entry's value has its dynamic payload freed so the caller can overwrite.
func (m Map) emplace(k Key) (memory.Ptr, bool, error) {
	if node := m.find(k); node != memory.NullPtr {
		valOff := node + memory.Ptr(m.valOff)
		if m.val.Dynamic() {
			m.val.Free(m.a, valOff)
		}
		return valOff, false, nil
	}

	cb, err := m.ensureCB()
	if err != nil {
		return memory.NullPtr, false, err
	}
	count := m.a.U32(cb + hashCountOff)
	capacity := m.a.U32(cb + hashCapOff)
	if (count+1)*4 > capacity*3 { // load factor 0.75
		if err := m.growAndRehash(cb); err != nil {
			return memory.NullPtr, false, err
		}
		capacity = m.a.U32(cb + hashCapOff)
	}

	node := m.a.Allocate(m.nodeSize, "map.node", cb)
	if node == memory.NullPtr {
		return memory.NullPtr, false, ErrOutOfMemory
	}
	m.a.Zero(node, m.nodeSize)
	if err := k.Write(m.a, node+memory.Ptr(m.keyOff)); err != nil {
		m.a.Free(node)
		return memory.NullPtr, false, err
	}

	buckets := m.a.Ptr(cb + hashBucketsOff)
	bucket := buckets + memory.Ptr((uint32(k.Hash())&(capacity-1))*4)
	m.a.PutPtr(node+nodeNext, m.a.Ptr(bucket))
	m.a.PutPtr(bucket, node)
	m.a.PutU32(cb+hashCountOff, count+1)
	return node + memory.Ptr(m.valOff), true, nil
}

// Delete removes the entry under k, freeing the key's owned allocation,
// the value's dynamic payload and the node itself.
func (m Map) Delete(k Key) bool {
	cb := m.cb()
	if cb == memory.NullPtr {
		return false
	}
	capacity := m.a.U32(cb + hashCapOff)
	buckets := m.a.Ptr(cb + hashBucketsOff)
	bucket := buckets + memory.Ptr((uint32(k.Hash())&(capacity-1))*4)

	prev := memory.NullPtr
	for node := m.a.Ptr(bucket); node != memory.NullPtr; node = m.a.Ptr(node + nodeNext) {
		if !k.Matches(m.a, node+memory.Ptr(m.keyOff)) {
			prev = node
			continue
		}
		next := m.a.Ptr(node + nodeNext)
		if prev == memory.NullPtr {
			m.a.PutPtr(bucket, next)
		} else {
			m.a.PutPtr(prev+nodeNext, next)
		}
		m.freeNode(node)
		m.a.PutU32(cb+hashCountOff, m.a.U32(cb+hashCountOff)-1)
		return true
	}
	return false
}

// Clear removes every entry but keeps the bucket array for reuse.
func (m Map) Clear() {
	cb := m.cb()
	if cb == memory.NullPtr {
		return
	}
	m.eachNode(cb, func(node memory.Ptr) {
		m.freeNode(node)
	})
	capacity := m.a.U32(cb + hashCapOff)
	buckets := m.a.Ptr(cb + hashBucketsOff)
	m.a.Zero(buckets, capacity*4)
	m.a.PutU32(cb+hashCountOff, 0)
}

// Free releases every entry, the bucket array and the control block, and
// nulls the slot.
func (m Map) Free() {
	cb := m.cb()
	if cb == memory.NullPtr {
		return
	}
	m.eachNode(cb, func(node memory.Ptr) {
		m.freeNode(node)
	})
	if buckets := m.a.Ptr(cb + hashBucketsOff); buckets != memory.NullPtr {
		m.a.Free(buckets)
	}
	m.a.Free(cb)
	m.a.PutPtr(m.slot, memory.NullPtr)
}

// Each visits every (key, value) slot pair until the callback returns
// false. Mutating the map during iteration is undefined.
func (m Map) Each(fn func(keyOff, valOff memory.Ptr) bool) {
	cb := m.cb()
	if cb == memory.NullPtr {
		return
	}
	capacity := m.a.U32(cb + hashCapOff)
	buckets := m.a.Ptr(cb + hashBucketsOff)
	for i := uint32(0); i < capacity; i++ {
		for node := m.a.Ptr(buckets + memory.Ptr(i*4)); node != memory.NullPtr; {
			next := m.a.Ptr(node + nodeNext)
			if !fn(node+memory.Ptr(m.keyOff), node+memory.Ptr(m.valOff)) {
				return
			}
			node = next
		}
	}
}

// CopyFrom clears the map and deep-copies every entry from src.
func (m Map) CopyFrom(src Map) error {
	m.Clear()
	var copyErr error
	src.Each(func(keyOff, valOff memory.Ptr) bool {
		k := m.keyAt(src.a, keyOff)
		dstVal, err := m.Emplace(k)
		if err != nil {
			copyErr = err
			return false
		}
		m.a.Zero(dstVal, m.val.Size())
		if err := m.val.CopyInto(m.a, dstVal, valOff); err != nil {
			copyErr = err
			return false
		}
		return true
	})
	return copyErr
}

// keyAt reconstructs a lookup Key from a stored key region.
func (m Map) keyAt(a *memory.Arena, keyOff memory.Ptr) Key {
	if m.key.Info.Kind == layout.KindString {
		return StringKey(stringBytes(a, keyOff))
	}
	return BytesKey(append([]byte(nil), a.Bytes(keyOff, m.key.Size())...))
}

func (m Map) find(k Key) memory.Ptr {
	cb := m.cb()
	if cb == memory.NullPtr {
		return memory.NullPtr
	}
	capacity := m.a.U32(cb + hashCapOff)
	buckets := m.a.Ptr(cb + hashBucketsOff)
	node := m.a.Ptr(buckets + memory.Ptr((uint32(k.Hash())&(capacity-1))*4))
	for node != memory.NullPtr {
		if k.Matches(m.a, node+memory.Ptr(m.keyOff)) {
			return node
		}
		node = m.a.Ptr(node + nodeNext)
	}
	return memory.NullPtr
}

func (m Map) freeNode(node memory.Ptr) {
	if m.key.Dynamic() {
		m.key.Free(m.a, node+memory.Ptr(m.keyOff))
	}
	if m.val.Dynamic() {
		m.val.Free(m.a, node+memory.Ptr(m.valOff))
	}
	m.a.Free(node)
}

func (m Map) eachNode(cb memory.Ptr, fn func(node memory.Ptr)) {
	capacity := m.a.U32(cb + hashCapOff)
	buckets := m.a.Ptr(cb + hashBucketsOff)
	if buckets == memory.NullPtr {
		return
	}
	for i := uint32(0); i < capacity; i++ {
		for node := m.a.Ptr(buckets + memory.Ptr(i*4)); node != memory.NullPtr; {
			next := m.a.Ptr(node + nodeNext)
			fn(node)
			node = next
		}
	}
}

func (m Map) ensureCB() (memory.Ptr, error) {
	cb := m.cb()
	if cb != memory.NullPtr {
		return cb, nil
	}
	cb = m.a.Allocate(hashCBSize, "map.cb", m.slot)
	if cb == memory.NullPtr {
		return memory.NullPtr, ErrOutOfMemory
	}
	buckets := m.a.Allocate(hashMinBuckets*4, "map.buckets", cb)
	if buckets == memory.NullPtr {
		m.a.Free(cb)
		return memory.NullPtr, ErrOutOfMemory
	}
	m.a.Zero(buckets, hashMinBuckets*4)
	m.a.PutU32(cb+hashCountOff, 0)
	m.a.PutU32(cb+hashCapOff, hashMinBuckets)
	m.a.PutPtr(cb+hashBucketsOff, buckets)
	m.a.PutPtr(m.slot, cb)
	return cb, nil
}

// growAndRehash doubles the bucket array and relinks every existing node
// by its stored key's hash. Nodes are reused as-is; no key or value
// bytes move.
func (m Map) growAndRehash(cb memory.Ptr) error {
	oldCap := m.a.U32(cb + hashCapOff)
	oldBuckets := m.a.Ptr(cb + hashBucketsOff)
	newCap := oldCap * 2
	newBuckets := m.a.Allocate(newCap*4, "map.buckets", cb)
	if newBuckets == memory.NullPtr {
		return ErrOutOfMemory
	}
	m.a.Zero(newBuckets, newCap*4)

	for i := uint32(0); i < oldCap; i++ {
		for node := m.a.Ptr(oldBuckets + memory.Ptr(i*4)); node != memory.NullPtr; {
			next := m.a.Ptr(node + nodeNext)
			hash := m.key.Hash(m.a, node+memory.Ptr(m.keyOff))
			bucket := newBuckets + memory.Ptr((uint32(hash)&(newCap-1))*4)
			m.a.PutPtr(node+nodeNext, m.a.Ptr(bucket))
			m.a.PutPtr(bucket, node)
			node = next
		}
	}

	m.a.Free(oldBuckets)
	m.a.PutPtr(cb+hashBucketsOff, newBuckets)
	m.a.PutU32(cb+hashCapOff, newCap)
	return nil
}

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}
