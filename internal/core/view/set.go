package view

import (
	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// Set is the accessor for a dynamic hash set slot: the same chained hash
// table as Map with no value region; membership is the key's presence.
// Iteration order is unspecified.
type Set struct {
	a    *memory.Arena
	slot memory.Ptr
	elem *Ops

	elemOff  uint32
	nodeSize uint32
}

func NewSet(a *memory.Arena, slot memory.Ptr, elemInfo *layout.BinaryInfo) Set {
	elemOps := OpsFor(elemInfo)
	elemOff := uint32(nodeLinkSize)
	return Set{
		a:        a,
		slot:     slot,
		elem:     elemOps,
		elemOff:  elemOff,
		nodeSize: elemOff + elemOps.Size(),
	}
}

func (s Set) cb() memory.Ptr { return s.a.Ptr(s.slot) }

// Len returns the member count; 0 when never allocated.
func (s Set) Len() uint32 {
	cb := s.cb()
	if cb == memory.NullPtr {
		return 0
	}
	return s.a.U32(cb + hashCountOff)
}

func (s Set) Has(k Key) bool { return s.find(k) != memory.NullPtr }

// Add inserts k, reporting whether it was newly added.
func (s Set) Add(k Key) (bool, error) {
	if s.find(k) != memory.NullPtr {
		return false, nil
	}
	cb, err := s.ensureCB()
	if err != nil {
		return false, err
	}
	count := s.a.U32(cb + hashCountOff)
	capacity := s.a.U32(cb + hashCapOff)
	if (count+1)*4 > capacity*3 {
		if err := s.growAndRehash(cb); err != nil {
			return false, err
		}
		capacity = s.a.U32(cb + hashCapOff)
	}

	node := s.a.Allocate(s.nodeSize, "set.node", cb)
	if node == memory.NullPtr {
		return false, ErrOutOfMemory
	}
	s.a.Zero(node, s.nodeSize)
	if err := k.Write(s.a, node+memory.Ptr(s.elemOff)); err != nil {
		s.a.Free(node)
		return false, err
	}

	buckets := s.a.Ptr(cb + hashBucketsOff)
	bucket := buckets + memory.Ptr((uint32(k.Hash())&(capacity-1))*4)
	s.a.PutPtr(node+nodeNext, s.a.Ptr(bucket))
	s.a.PutPtr(bucket, node)
	s.a.PutU32(cb+hashCountOff, count+1)
	return true, nil
}

// Delete removes k, freeing the member's owned allocation and the node.
func (s Set) Delete(k Key) bool {
	cb := s.cb()
	if cb == memory.NullPtr {
		return false
	}
	capacity := s.a.U32(cb + hashCapOff)
	buckets := s.a.Ptr(cb + hashBucketsOff)
	bucket := buckets + memory.Ptr((uint32(k.Hash())&(capacity-1))*4)

	prev := memory.NullPtr
	for node := s.a.Ptr(bucket); node != memory.NullPtr; node = s.a.Ptr(node + nodeNext) {
		if !k.Matches(s.a, node+memory.Ptr(s.elemOff)) {
			prev = node
			continue
		}
		next := s.a.Ptr(node + nodeNext)
		if prev == memory.NullPtr {
			s.a.PutPtr(bucket, next)
		} else {
			s.a.PutPtr(prev+nodeNext, next)
		}
		s.freeNode(node)
		s.a.PutU32(cb+hashCountOff, s.a.U32(cb+hashCountOff)-1)
		return true
	}
	return false
}

// Clear removes every member but keeps the bucket array.
func (s Set) Clear() {
	cb := s.cb()
	if cb == memory.NullPtr {
		return
	}
	s.eachNode(cb, s.freeNode)
	capacity := s.a.U32(cb + hashCapOff)
	s.a.Zero(s.a.Ptr(cb+hashBucketsOff), capacity*4)
	s.a.PutU32(cb+hashCountOff, 0)
}

// Free releases everything and nulls the slot.
func (s Set) Free() {
	cb := s.cb()
	if cb == memory.NullPtr {
		return
	}
	s.eachNode(cb, s.freeNode)
	if buckets := s.a.Ptr(cb + hashBucketsOff); buckets != memory.NullPtr {
		s.a.Free(buckets)
	}
	s.a.Free(cb)
	s.a.PutPtr(s.slot, memory.NullPtr)
}

// Each visits every member's storage offset until the callback returns
// false.
func (s Set) Each(fn func(off memory.Ptr) bool) {
	cb := s.cb()
	if cb == memory.NullPtr {
		return
	}
	capacity := s.a.U32(cb + hashCapOff)
	buckets := s.a.Ptr(cb + hashBucketsOff)
	for i := uint32(0); i < capacity; i++ {
		for node := s.a.Ptr(buckets + memory.Ptr(i*4)); node != memory.NullPtr; {
			next := s.a.Ptr(node + nodeNext)
			if !fn(node + memory.Ptr(s.elemOff)) {
				return
			}
			node = next
		}
	}
}

// ItemsU32 collects the members as raw u32 values (entity id sets).
// Convenience for the relationship bookkeeping, which needs a stable
// snapshot before mutating the set.
func (s Set) ItemsU32() []uint32 {
	out := make([]uint32, 0, s.Len())
	s.Each(func(off memory.Ptr) bool {
		out = append(out, s.a.U32(off))
		return true
	})
	return out
}

// CopyFrom clears the set and deep-copies every member from src.
func (s Set) CopyFrom(src Set) error {
	s.Clear()
	var copyErr error
	src.Each(func(off memory.Ptr) bool {
		var k Key
		if s.elem.Info.Kind == layout.KindString {
			k = StringKey(stringBytes(src.a, off))
		} else {
			k = BytesKey(append([]byte(nil), src.a.Bytes(off, s.elem.Size())...))
		}
		if _, err := s.Add(k); err != nil {
			copyErr = err
			return false
		}
		return true
	})
	return copyErr
}

func (s Set) find(k Key) memory.Ptr {
	cb := s.cb()
	if cb == memory.NullPtr {
		return memory.NullPtr
	}
	capacity := s.a.U32(cb + hashCapOff)
	buckets := s.a.Ptr(cb + hashBucketsOff)
	node := s.a.Ptr(buckets + memory.Ptr((uint32(k.Hash())&(capacity-1))*4))
	for node != memory.NullPtr {
		if k.Matches(s.a, node+memory.Ptr(s.elemOff)) {
			return node
		}
		node = s.a.Ptr(node + nodeNext)
	}
	return memory.NullPtr
}

func (s Set) freeNode(node memory.Ptr) {
	if s.elem.Dynamic() {
		s.elem.Free(s.a, node+memory.Ptr(s.elemOff))
	}
	s.a.Free(node)
}

func (s Set) eachNode(cb memory.Ptr, fn func(node memory.Ptr)) {
	capacity := s.a.U32(cb + hashCapOff)
	buckets := s.a.Ptr(cb + hashBucketsOff)
	if buckets == memory.NullPtr {
		return
	}
	for i := uint32(0); i < capacity; i++ {
		for node := s.a.Ptr(buckets + memory.Ptr(i*4)); node != memory.NullPtr; {
			next := s.a.Ptr(node + nodeNext)
			fn(node)
			node = next
		}
	}
}

func (s Set) ensureCB() (memory.Ptr, error) {
	cb := s.cb()
	if cb != memory.NullPtr {
		return cb, nil
	}
	cb = s.a.Allocate(hashCBSize, "set.cb", s.slot)
	if cb == memory.NullPtr {
		return memory.NullPtr, ErrOutOfMemory
	}
	buckets := s.a.Allocate(hashMinBuckets*4, "set.buckets", cb)
	if buckets == memory.NullPtr {
		s.a.Free(cb)
		return memory.NullPtr, ErrOutOfMemory
	}
	s.a.Zero(buckets, hashMinBuckets*4)
	s.a.PutU32(cb+hashCountOff, 0)
	s.a.PutU32(cb+hashCapOff, hashMinBuckets)
	s.a.PutPtr(cb+hashBucketsOff, buckets)
	s.a.PutPtr(s.slot, cb)
	return cb, nil
}

func (s Set) growAndRehash(cb memory.Ptr) error {
	oldCap := s.a.U32(cb + hashCapOff)
	oldBuckets := s.a.Ptr(cb + hashBucketsOff)
	newCap := oldCap * 2
	newBuckets := s.a.Allocate(newCap*4, "set.buckets", cb)
	if newBuckets == memory.NullPtr {
		return ErrOutOfMemory
	}
	s.a.Zero(newBuckets, newCap*4)

	for i := uint32(0); i < oldCap; i++ {
		for node := s.a.Ptr(oldBuckets + memory.Ptr(i*4)); node != memory.NullPtr; {
			next := s.a.Ptr(node + nodeNext)
			hash := s.elem.Hash(s.a, node+memory.Ptr(s.elemOff))
			bucket := newBuckets + memory.Ptr((uint32(hash)&(newCap-1))*4)
			s.a.PutPtr(node+nodeNext, s.a.Ptr(bucket))
			s.a.PutPtr(bucket, node)
			node = next
		}
	}

	s.a.Free(oldBuckets)
	s.a.PutPtr(cb+hashBucketsOff, newBuckets)
	s.a.PutU32(cb+hashCapOff, newCap)
	return nil
}
