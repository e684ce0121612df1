package view

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// Ops is the per-type operation set the dynamic containers are
// parameterized over: hashing, equality, deep free and deep copy of a
// value at an arena offset. The variant family is closed (primitives and
// other fixed data byte-compare their region, strings indirect through
// their pointer slot, structs and collections recurse) and is resolved
// once from the type's BinaryInfo at schema-registration time, never
// per-call.
type Ops struct {
	Info *layout.BinaryInfo
}

// OpsFor returns the operation set for a resolved binary type.
func OpsFor(info *layout.BinaryInfo) *Ops {
	return &Ops{Info: info}
}

func (o *Ops) Size() uint32  { return o.Info.Size }
func (o *Ops) Align() uint32 { return o.Info.Alignment }
func (o *Ops) Dynamic() bool { return o.Info.Dynamic }

// Hash hashes the value at off by content. Fixed-size values hash their
// raw region and strings their pointed-at payload, matching BytesKey and
// StringKey, so rehashing relocates nodes consistently. Dynamic
// composites fold their members through a streaming digest, indirecting
// through every pointer slot, so logically equal values hash equally
// regardless of where their payloads were allocated.
func (o *Ops) Hash(a *memory.Arena, off memory.Ptr) uint64 {
	if o.Info.Kind == layout.KindString {
		return xxhash.Sum64(stringBytes(a, off))
	}
	if !o.Info.Dynamic {
		return xxhash.Sum64(a.Bytes(off, o.Info.Size))
	}
	d := xxhash.New()
	hashValue(d, a, off, o.Info)
	return d.Sum64()
}

// Equals compares the values at x and y by content. Fixed-size values
// byte-compare their region; dynamic values compare what their pointer
// slots reach, member by member.
func (o *Ops) Equals(a *memory.Arena, x, y memory.Ptr) bool {
	return equalValues(a, x, y, o.Info)
}

// EqualsBytes compares the value at off against raw encoded bytes. For a
// string the raw bytes are the payload itself; for dynamic composites
// they are the value's fixed region, whose pointer slots must reference
// storage in the same arena.
func (o *Ops) EqualsBytes(a *memory.Arena, off memory.Ptr, raw []byte) bool {
	if o.Info.Kind == layout.KindString {
		return bytes.Equal(stringBytes(a, off), raw)
	}
	return equalsRaw(a, off, raw, o.Info)
}

// Free releases every heap allocation owned by the value at off and nulls
// the owning slots. Values without dynamic data are untouched.
func (o *Ops) Free(a *memory.Arena, off memory.Ptr) {
	if !o.Info.Dynamic {
		return
	}
	info := o.Info
	switch info.Kind {
	case layout.KindString:
		NewString(a, off).Free()
	case layout.KindDynamicArray:
		NewArray(a, off, info.Element).Free()
	case layout.KindDynamicMap:
		NewMap(a, off, info.Key, info.Value).Free()
	case layout.KindDynamicSet:
		NewSet(a, off, info.Element).Free()
	case layout.KindSparseSet:
		NewSet(a, off, sparseElem).Free()
	case layout.KindStruct:
		for i := range info.Layout.Properties {
			p := &info.Layout.Properties[i]
			if p.Binary.Dynamic && !p.Packed() {
				OpsFor(p.Binary).Free(a, off+memory.Ptr(p.Offset))
			}
		}
	case layout.KindTuple:
		for i, elem := range info.Elements {
			if elem.Dynamic {
				OpsFor(elem).Free(a, off+memory.Ptr(info.ElementOffsets[i]))
			}
		}
	case layout.KindFixedArray:
		if info.Element.Dynamic {
			elemOps := OpsFor(info.Element)
			for i := uint32(0); i < info.Count; i++ {
				elemOps.Free(a, off+memory.Ptr(i*info.Element.Size))
			}
		}
	case layout.KindUnion:
		NewUnion(a, off, info).Free()
	}
}

// CopyInto deep-copies the value at src over the value at dst. dst is
// assumed dead (its previous dynamic payload already freed); the copy
// allocates fresh payloads for every dynamic sub-value.
func (o *Ops) CopyInto(a *memory.Arena, dst, src memory.Ptr) error {
	info := o.Info
	if !info.Dynamic {
		a.Copy(dst, src, info.Size)
		return nil
	}
	switch info.Kind {
	case layout.KindString:
		a.PutPtr(dst, memory.NullPtr)
		return NewString(a, dst).Set(NewString(a, src).Get())
	case layout.KindDynamicArray:
		a.PutPtr(dst, memory.NullPtr)
		return NewArray(a, dst, info.Element).CopyFrom(NewArray(a, src, info.Element))
	case layout.KindDynamicMap:
		a.PutPtr(dst, memory.NullPtr)
		return NewMap(a, dst, info.Key, info.Value).CopyFrom(NewMap(a, src, info.Key, info.Value))
	case layout.KindDynamicSet:
		a.PutPtr(dst, memory.NullPtr)
		return NewSet(a, dst, info.Element).CopyFrom(NewSet(a, src, info.Element))
	case layout.KindSparseSet:
		a.PutPtr(dst, memory.NullPtr)
		return NewSet(a, dst, sparseElem).CopyFrom(NewSet(a, src, sparseElem))
	case layout.KindStruct:
		a.Copy(dst, src, info.Size)
		for i := range info.Layout.Properties {
			p := &info.Layout.Properties[i]
			if p.Binary.Dynamic && !p.Packed() {
				if err := OpsFor(p.Binary).CopyInto(a, dst+memory.Ptr(p.Offset), src+memory.Ptr(p.Offset)); err != nil {
					return err
				}
			}
		}
		return nil
	case layout.KindTuple:
		a.Copy(dst, src, info.Size)
		for i, elem := range info.Elements {
			if elem.Dynamic {
				at := memory.Ptr(info.ElementOffsets[i])
				if err := OpsFor(elem).CopyInto(a, dst+at, src+at); err != nil {
					return err
				}
			}
		}
		return nil
	case layout.KindFixedArray:
		a.Copy(dst, src, info.Size)
		if info.Element.Dynamic {
			elemOps := OpsFor(info.Element)
			for i := uint32(0); i < info.Count; i++ {
				at := memory.Ptr(i * info.Element.Size)
				if err := elemOps.CopyInto(a, dst+at, src+at); err != nil {
					return err
				}
			}
		}
		return nil
	case layout.KindUnion:
		return NewUnion(a, dst, info).CopyFrom(NewUnion(a, src, info))
	}
	a.Copy(dst, src, info.Size)
	return nil
}

// sparseElem backs the sparse-set entity collection: a plain u32 id set.
var sparseElem = &layout.BinaryInfo{
	Type:      "u32",
	Kind:      layout.KindPrimitive,
	Size:      4,
	Alignment: 4,
}

func stringBytes(a *memory.Arena, slot memory.Ptr) []byte {
	return payloadBytes(a, a.Ptr(slot))
}

func payloadBytes(a *memory.Arena, ptr memory.Ptr) []byte {
	if ptr == memory.NullPtr {
		return nil
	}
	return a.Bytes(ptr+4, a.U32(ptr))
}

// rawPtr reads the pointer slot at the head of a raw fixed region.
func rawPtr(raw []byte) memory.Ptr {
	return memory.Ptr(binary.LittleEndian.Uint32(raw))
}

func setElem(info *layout.BinaryInfo) *layout.BinaryInfo {
	if info.Kind == layout.KindSparseSet {
		return sparseElem
	}
	return info.Element
}

func hashU32(d *xxhash.Digest, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, _ = d.Write(b[:])
}

func hashU64(d *xxhash.Digest, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, _ = d.Write(b[:])
}

// hashValue folds the value's content into the digest, mirroring the
// member walk of Free and CopyInto. Strings contribute length plus
// payload; containers contribute their count plus an order-independent
// fold of their members, since iteration order is unspecified.
func hashValue(d *xxhash.Digest, a *memory.Arena, off memory.Ptr, info *layout.BinaryInfo) {
	if !info.Dynamic {
		_, _ = d.Write(a.Bytes(off, info.Size))
		return
	}
	switch info.Kind {
	case layout.KindString:
		s := stringBytes(a, off)
		hashU32(d, uint32(len(s)))
		_, _ = d.Write(s)
	case layout.KindStruct:
		for i := range info.Layout.Properties {
			p := &info.Layout.Properties[i]
			if p.Binary.Dynamic && !p.Packed() {
				hashValue(d, a, off+memory.Ptr(p.Offset), p.Binary)
			} else {
				_, _ = d.Write(a.Bytes(off+memory.Ptr(p.Offset), p.Size))
			}
		}
	case layout.KindTuple:
		for i, elem := range info.Elements {
			hashValue(d, a, off+memory.Ptr(info.ElementOffsets[i]), elem)
		}
	case layout.KindFixedArray:
		for i := uint32(0); i < info.Count; i++ {
			hashValue(d, a, off+memory.Ptr(i*info.Element.Size), info.Element)
		}
	case layout.KindDynamicArray:
		cb := a.Ptr(off)
		n := arrLenCB(a, cb)
		hashU32(d, n)
		if n > 0 {
			elems := a.Ptr(cb + arrElemOff)
			for i := uint32(0); i < n; i++ {
				hashValue(d, a, elems+memory.Ptr(i*info.Element.Size), info.Element)
			}
		}
	case layout.KindDynamicSet, layout.KindSparseSet:
		elemOps := OpsFor(setElem(info))
		cb := a.Ptr(off)
		hashU32(d, hashLenCB(a, cb))
		var acc uint64
		hashEachCB(a, cb, func(node memory.Ptr) bool {
			acc ^= elemOps.Hash(a, node+nodeLinkSize)
			return true
		})
		hashU64(d, acc)
	case layout.KindDynamicMap:
		keyOps, valOps := OpsFor(info.Key), OpsFor(info.Value)
		valAt := memory.Ptr(alignUp(nodeLinkSize+info.Key.Size, info.Value.Alignment))
		cb := a.Ptr(off)
		hashU32(d, hashLenCB(a, cb))
		var acc uint64
		hashEachCB(a, cb, func(node memory.Ptr) bool {
			kh := keyOps.Hash(a, node+nodeLinkSize)
			vh := valOps.Hash(a, node+valAt)
			acc ^= kh ^ (vh<<1 | vh>>63)
			return true
		})
		hashU64(d, acc)
	case layout.KindUnion:
		u := NewUnion(a, off, info)
		v := u.Variant()
		hashU32(d, uint32(int32(v)))
		if v >= 0 {
			data, _ := u.Data()
			hashValue(d, a, data, info.Variants[v])
		}
	default:
		_, _ = d.Write(a.Bytes(off, info.Size))
	}
}

// equalValues compares two in-arena values of the same resolved type.
func equalValues(a *memory.Arena, x, y memory.Ptr, info *layout.BinaryInfo) bool {
	if !info.Dynamic {
		return bytes.Equal(a.Bytes(x, info.Size), a.Bytes(y, info.Size))
	}
	switch info.Kind {
	case layout.KindString:
		return bytes.Equal(stringBytes(a, x), stringBytes(a, y))
	case layout.KindStruct:
		for i := range info.Layout.Properties {
			p := &info.Layout.Properties[i]
			at := memory.Ptr(p.Offset)
			if p.Binary.Dynamic && !p.Packed() {
				if !equalValues(a, x+at, y+at, p.Binary) {
					return false
				}
			} else if !bytes.Equal(a.Bytes(x+at, p.Size), a.Bytes(y+at, p.Size)) {
				return false
			}
		}
		return true
	case layout.KindTuple:
		for i, elem := range info.Elements {
			at := memory.Ptr(info.ElementOffsets[i])
			if !equalValues(a, x+at, y+at, elem) {
				return false
			}
		}
		return true
	case layout.KindFixedArray:
		for i := uint32(0); i < info.Count; i++ {
			at := memory.Ptr(i * info.Element.Size)
			if !equalValues(a, x+at, y+at, info.Element) {
				return false
			}
		}
		return true
	case layout.KindDynamicArray:
		return arrayEqualCB(a, a.Ptr(x), a.Ptr(y), info.Element)
	case layout.KindDynamicSet, layout.KindSparseSet:
		return setEqualCB(a, a.Ptr(x), a.Ptr(y), setElem(info))
	case layout.KindDynamicMap:
		return mapEqualCB(a, a.Ptr(x), a.Ptr(y), info.Key, info.Value)
	case layout.KindUnion:
		ux, uy := NewUnion(a, x, info), NewUnion(a, y, info)
		v := ux.Variant()
		if v != uy.Variant() {
			return false
		}
		if v < 0 {
			return true
		}
		dx, _ := ux.Data()
		dy, _ := uy.Data()
		return equalValues(a, dx, dy, info.Variants[v])
	}
	return bytes.Equal(a.Bytes(x, info.Size), a.Bytes(y, info.Size))
}

// equalsRaw compares an in-arena value against the raw fixed region of a
// needle whose indirect payloads live in the same arena.
func equalsRaw(a *memory.Arena, off memory.Ptr, raw []byte, info *layout.BinaryInfo) bool {
	if !info.Dynamic {
		return bytes.Equal(a.Bytes(off, info.Size), raw)
	}
	switch info.Kind {
	case layout.KindString:
		return bytes.Equal(stringBytes(a, off), payloadBytes(a, rawPtr(raw)))
	case layout.KindStruct:
		for i := range info.Layout.Properties {
			p := &info.Layout.Properties[i]
			at := memory.Ptr(p.Offset)
			sub := raw[p.Offset : p.Offset+p.Size]
			if p.Binary.Dynamic && !p.Packed() {
				if !equalsRaw(a, off+at, sub, p.Binary) {
					return false
				}
			} else if !bytes.Equal(a.Bytes(off+at, p.Size), sub) {
				return false
			}
		}
		return true
	case layout.KindTuple:
		for i, elem := range info.Elements {
			at := info.ElementOffsets[i]
			if !equalsRaw(a, off+memory.Ptr(at), raw[at:at+elem.Size], elem) {
				return false
			}
		}
		return true
	case layout.KindFixedArray:
		for i := uint32(0); i < info.Count; i++ {
			at := i * info.Element.Size
			if !equalsRaw(a, off+memory.Ptr(at), raw[at:at+info.Element.Size], info.Element) {
				return false
			}
		}
		return true
	case layout.KindDynamicArray:
		return arrayEqualCB(a, a.Ptr(off), rawPtr(raw), info.Element)
	case layout.KindDynamicSet, layout.KindSparseSet:
		return setEqualCB(a, a.Ptr(off), rawPtr(raw), setElem(info))
	case layout.KindDynamicMap:
		return mapEqualCB(a, a.Ptr(off), rawPtr(raw), info.Key, info.Value)
	case layout.KindUnion:
		u := NewUnion(a, off, info)
		v := u.Variant()
		if info.TaggedPointer {
			block := rawPtr(raw)
			if block == memory.NullPtr {
				return v < 0
			}
			if v != int(a.U8(block)) {
				return false
			}
			data, _ := u.Data()
			return equalValues(a, data, block+tpDataOff, info.Variants[v])
		}
		tag := int(raw[info.TagOffset])
		if info.Nullable {
			tag--
		}
		if v != tag {
			return false
		}
		if v < 0 {
			return true
		}
		data, _ := u.Data()
		vi := info.Variants[v]
		return equalsRaw(a, data, raw[info.DataOffset:info.DataOffset+vi.Size], vi)
	}
	return bytes.Equal(a.Bytes(off, info.Size), raw)
}

func arrLenCB(a *memory.Arena, cb memory.Ptr) uint32 {
	if cb == memory.NullPtr {
		return 0
	}
	return a.U32(cb + arrLenOff)
}

func arrayEqualCB(a *memory.Arena, x, y memory.Ptr, elem *layout.BinaryInfo) bool {
	n := arrLenCB(a, x)
	if n != arrLenCB(a, y) {
		return false
	}
	if n == 0 {
		return true
	}
	ex, ey := a.Ptr(x+arrElemOff), a.Ptr(y+arrElemOff)
	for i := uint32(0); i < n; i++ {
		at := memory.Ptr(i * elem.Size)
		if !equalValues(a, ex+at, ey+at, elem) {
			return false
		}
	}
	return true
}

func hashLenCB(a *memory.Arena, cb memory.Ptr) uint32 {
	if cb == memory.NullPtr {
		return 0
	}
	return a.U32(cb + hashCountOff)
}

// hashEachCB walks every chain node of a hash container's control block
// until the callback returns false.
func hashEachCB(a *memory.Arena, cb memory.Ptr, fn func(node memory.Ptr) bool) {
	if cb == memory.NullPtr {
		return
	}
	capacity := a.U32(cb + hashCapOff)
	buckets := a.Ptr(cb + hashBucketsOff)
	if buckets == memory.NullPtr {
		return
	}
	for i := uint32(0); i < capacity; i++ {
		for node := a.Ptr(buckets + memory.Ptr(i*4)); node != memory.NullPtr; node = a.Ptr(node + nodeNext) {
			if !fn(node) {
				return
			}
		}
	}
}

// setEqualCB matches members pairwise. Bucket layout differs between
// equal sets whose insertion histories differed, so the scan is
// quadratic.
func setEqualCB(a *memory.Arena, x, y memory.Ptr, elem *layout.BinaryInfo) bool {
	if hashLenCB(a, x) != hashLenCB(a, y) {
		return false
	}
	equal := true
	hashEachCB(a, x, func(nx memory.Ptr) bool {
		found := false
		hashEachCB(a, y, func(ny memory.Ptr) bool {
			found = equalValues(a, nx+nodeLinkSize, ny+nodeLinkSize, elem)
			return !found
		})
		equal = found
		return equal
	})
	return equal
}

func mapEqualCB(a *memory.Arena, x, y memory.Ptr, keyInfo, valInfo *layout.BinaryInfo) bool {
	if hashLenCB(a, x) != hashLenCB(a, y) {
		return false
	}
	valAt := memory.Ptr(alignUp(nodeLinkSize+keyInfo.Size, valInfo.Alignment))
	equal := true
	hashEachCB(a, x, func(nx memory.Ptr) bool {
		found := false
		hashEachCB(a, y, func(ny memory.Ptr) bool {
			found = equalValues(a, nx+nodeLinkSize, ny+nodeLinkSize, keyInfo) &&
				equalValues(a, nx+valAt, ny+valAt, valInfo)
			return !found
		})
		equal = found
		return equal
	})
	return equal
}
