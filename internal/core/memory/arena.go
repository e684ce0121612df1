package memory

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/guerrero-dev/guerrero/internal/core/observability/log"
)

// Ptr is a byte offset into an Arena's backing buffer. It is the only form
// of "pointer" the runtime containers use, which keeps every allocation
// relocatable when the backing buffer is resized.
type Ptr uint32

// NullPtr is the null sentinel. Offset zero is covered by the arena header,
// so no allocation can ever legally sit there.
const NullPtr Ptr = 0

const (
	// headerSize is the per-block bookkeeping prefix: payload size plus the
	// free bit in the first word, the physical predecessor in the second.
	headerSize = 8
	// minPayload must hold the free-list links of a free block.
	minPayload = 8
	// granularity is the allocation rounding unit; it doubles as the
	// strictest alignment the arena hands out.
	granularity = 8
	// arenaBase reserves the first bytes of the buffer so that offset zero
	// stays invalid.
	arenaBase = 8

	freeBit  = uint32(1) << 31
	sizeMask = ^freeBit

	numBins = 32
)

// Stats reports allocation activity. Tests use the counters to detect leaks
// by balancing frees against allocations.
type Stats struct {
	AllocCount uint64
	FreeCount  uint64
	LiveBytes  uint64
}

type ownerInfo struct {
	tag   string
	owner Ptr
}

// Arena is a TLSF-style free-list allocator over one contiguous byte
// buffer. Free blocks are segregated into power-of-two size-class bins and
// coalesced with their physical neighbors on release.
//
// Allocate never grows the buffer; exhaustion is reported with NullPtr and
// growth is an explicit Resize call. The arena is not safe for concurrent
// use: the engine's cooperative scheduler is the only writer.
type Arena struct {
	buf   []byte
	bins  [numBins]Ptr // payload offset of the first free block per class
	stats Stats
	log   log.Log

	// owner diagnostics, populated only when tracking is enabled
	owners map[Ptr]ownerInfo
	track  bool
}

// NewArena creates an arena over a fresh buffer of the given size. Sizes
// below the minimum working footprint are rounded up.
func NewArena(size int, logger log.Log) *Arena {
	if logger == nil {
		logger = log.Discard()
	}
	if size < arenaBase+headerSize+minPayload {
		size = arenaBase + headerSize + minPayload
	}
	size = alignUp(size, granularity)
	a := &Arena{
		buf: make([]byte, size),
		log: logger,
	}
	a.formatTail(Ptr(arenaBase), 0)
	return a
}

// EnableOwnerTracking turns on per-allocation owner diagnostics. Intended
// for debugging container bookkeeping, not for production paths.
func (a *Arena) EnableOwnerTracking() {
	a.track = true
	if a.owners == nil {
		a.owners = make(map[Ptr]ownerInfo)
	}
}

// Stats returns a copy of the allocation counters.
func (a *Arena) Stats() Stats { return a.stats }

// Size returns the current backing buffer size in bytes.
func (a *Arena) Size() int { return len(a.buf) }

// Allocate reserves size bytes and returns the payload offset, or NullPtr
// when no free block can satisfy the request. The ownerTag and ownerPtr
// arguments are diagnostic metadata only.
func (a *Arena) Allocate(size uint32, ownerTag string, ownerPtr Ptr) Ptr {
	if size == 0 {
		size = minPayload
	}
	size = uint32(alignUp(int(size), granularity))
	if size < minPayload {
		size = minPayload
	}

	ptr := a.takeBlock(size)
	if ptr == NullPtr {
		a.log.Warn("arena exhausted",
			log.Uint32("requested", size),
			log.String("owner", ownerTag),
			log.Uint32("owner_ptr", uint32(ownerPtr)))
		return NullPtr
	}

	a.stats.AllocCount++
	a.stats.LiveBytes += uint64(a.blockSize(ptr))
	if a.track {
		a.owners[ptr] = ownerInfo{tag: ownerTag, owner: ownerPtr}
	}
	return ptr
}

// Free returns a previously allocated block to the free structure,
// coalescing with free physical neighbors. Freeing NullPtr is a no-op;
// freeing the same pointer twice is undefined, matching raw-buffer
// semantics.
func (a *Arena) Free(ptr Ptr) {
	if ptr == NullPtr {
		return
	}
	size := a.blockSize(ptr)
	a.stats.FreeCount++
	a.stats.LiveBytes -= uint64(size)
	if a.track {
		delete(a.owners, ptr)
	}

	hdr := ptr - headerSize

	// Coalesce with the physical successor.
	next := hdr + headerSize + Ptr(size)
	if int(next) < len(a.buf) && a.headerFree(next) {
		a.unlink(next + headerSize)
		size += headerSize + a.blockSize(next+headerSize)
	}

	// Coalesce with the physical predecessor.
	prev := a.prevPhys(hdr)
	if prev != 0 && a.headerFree(prev) {
		a.unlink(prev + headerSize)
		size += headerSize + a.blockSize(prev+headerSize)
		hdr = prev
	}

	a.writeHeader(hdr, size, true)
	a.fixSuccessorPrev(hdr, size)
	a.pushFree(hdr + headerSize)
}

// Resize grows the backing buffer to newSize bytes. The grown tail joins
// the free structure (coalescing with a trailing free block when present).
// Shrinking is not supported; a smaller size is ignored.
func (a *Arena) Resize(newSize int) {
	newSize = alignUp(newSize, granularity)
	if newSize <= len(a.buf) {
		return
	}
	oldLen := len(a.buf)
	grown := make([]byte, newSize)
	copy(grown, a.buf)
	a.buf = grown

	// The grown region becomes one block released through the normal Free
	// path so it coalesces with a trailing free block when one exists.
	lastHdr := a.lastHeader(oldLen)
	hdr := Ptr(oldLen)
	payload := uint32(newSize - oldLen - headerSize)
	a.writeHeader(hdr, payload, false)
	binary.LittleEndian.PutUint32(a.buf[hdr+4:], uint32(lastHdr))
	a.stats.LiveBytes += uint64(payload)
	a.Free(hdr + headerSize)
	a.stats.FreeCount--
	a.log.Debug("arena resized", log.Int("old", oldLen), log.Int("new", newSize))
}

// OwnedBy reports the diagnostic owner recorded for a live allocation.
// Only meaningful when owner tracking is enabled.
func (a *Arena) OwnedBy(ptr Ptr) (tag string, owner Ptr, ok bool) {
	info, ok := a.owners[ptr]
	return info.tag, info.owner, ok
}

// --- block bookkeeping ---

func (a *Arena) formatTail(hdr Ptr, prevHdr Ptr) {
	payload := uint32(len(a.buf)) - uint32(hdr) - headerSize
	a.writeHeader(hdr, payload, true)
	binary.LittleEndian.PutUint32(a.buf[hdr+4:], uint32(prevHdr))
	a.pushFree(hdr + headerSize)
}

func (a *Arena) takeBlock(size uint32) Ptr {
	for class := binIndex(size); class < numBins; class++ {
		for ptr := a.bins[class]; ptr != NullPtr; ptr = a.freeNext(ptr) {
			if a.blockSize(ptr) >= size {
				a.unlink(ptr)
				a.split(ptr, size)
				a.setFree(ptr, false)
				return ptr
			}
		}
	}
	return NullPtr
}

// split carves the tail of a block off into a new free block when the
// remainder can hold a minimum block, otherwise leaves the slack in place.
func (a *Arena) split(ptr Ptr, size uint32) {
	total := a.blockSize(ptr)
	if total < size+headerSize+minPayload {
		return
	}
	hdr := ptr - headerSize
	a.writeHeader(hdr, size, false)

	restHdr := ptr + Ptr(size)
	restSize := total - size - headerSize
	a.writeHeader(restHdr, restSize, true)
	binary.LittleEndian.PutUint32(a.buf[restHdr+4:], uint32(hdr))
	a.fixSuccessorPrev(restHdr, restSize)
	a.pushFree(restHdr + headerSize)
}

func (a *Arena) fixSuccessorPrev(hdr Ptr, size uint32) {
	next := hdr + headerSize + Ptr(size)
	if int(next) < len(a.buf) {
		binary.LittleEndian.PutUint32(a.buf[next+4:], uint32(hdr))
	}
}

func (a *Arena) lastHeader(end int) Ptr {
	hdr := Ptr(arenaBase)
	for {
		next := hdr + headerSize + Ptr(a.blockSize(hdr+headerSize))
		if int(next) >= end {
			return hdr
		}
		hdr = next
	}
}

func (a *Arena) writeHeader(hdr Ptr, payload uint32, free bool) {
	word := payload & sizeMask
	if free {
		word |= freeBit
	}
	binary.LittleEndian.PutUint32(a.buf[hdr:], word)
}

func (a *Arena) blockSize(ptr Ptr) uint32 {
	return binary.LittleEndian.Uint32(a.buf[ptr-headerSize:]) & sizeMask
}

func (a *Arena) headerFree(hdr Ptr) bool {
	return binary.LittleEndian.Uint32(a.buf[hdr:])&freeBit != 0
}

func (a *Arena) setFree(ptr Ptr, free bool) {
	hdr := ptr - headerSize
	a.writeHeader(hdr, a.blockSize(ptr), free)
}

func (a *Arena) prevPhys(hdr Ptr) Ptr {
	return Ptr(binary.LittleEndian.Uint32(a.buf[hdr+4:]))
}

// Free-list links live inside the free block's payload.

func (a *Arena) freeNext(ptr Ptr) Ptr {
	return Ptr(binary.LittleEndian.Uint32(a.buf[ptr:]))
}

func (a *Arena) freePrev(ptr Ptr) Ptr {
	return Ptr(binary.LittleEndian.Uint32(a.buf[ptr+4:]))
}

func (a *Arena) setFreeLinks(ptr, next, prev Ptr) {
	binary.LittleEndian.PutUint32(a.buf[ptr:], uint32(next))
	binary.LittleEndian.PutUint32(a.buf[ptr+4:], uint32(prev))
}

func (a *Arena) pushFree(ptr Ptr) {
	class := binIndex(a.blockSize(ptr))
	head := a.bins[class]
	a.setFreeLinks(ptr, head, NullPtr)
	if head != NullPtr {
		binary.LittleEndian.PutUint32(a.buf[head+4:], uint32(ptr))
	}
	a.bins[class] = ptr
}

func (a *Arena) unlink(ptr Ptr) {
	next, prev := a.freeNext(ptr), a.freePrev(ptr)
	if prev != NullPtr {
		binary.LittleEndian.PutUint32(a.buf[prev:], uint32(next))
	} else {
		a.bins[binIndex(a.blockSize(ptr))] = next
	}
	if next != NullPtr {
		binary.LittleEndian.PutUint32(a.buf[next+4:], uint32(prev))
	}
}

func binIndex(size uint32) int {
	if size <= minPayload {
		return 0
	}
	return bits.Len32(size-1) - bits.Len32(minPayload-1)
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// AlignUp rounds n up to the next multiple of align (a power of two).
func AlignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// --- typed load/store primitives ---
//
// All multi-byte accesses are little-endian. Views read and write struct
// fields exclusively through these.

func (a *Arena) Bytes(off Ptr, n uint32) []byte { return a.buf[off : uint32(off)+n] }

func (a *Arena) Zero(off Ptr, n uint32) {
	clear(a.buf[off : uint32(off)+n])
}

func (a *Arena) Copy(dst, src Ptr, n uint32) {
	copy(a.buf[dst:uint32(dst)+n], a.buf[src:uint32(src)+n])
}

func (a *Arena) U8(off Ptr) uint8         { return a.buf[off] }
func (a *Arena) PutU8(off Ptr, v uint8)   { a.buf[off] = v }
func (a *Arena) U16(off Ptr) uint16       { return binary.LittleEndian.Uint16(a.buf[off:]) }
func (a *Arena) PutU16(off Ptr, v uint16) { binary.LittleEndian.PutUint16(a.buf[off:], v) }
func (a *Arena) U32(off Ptr) uint32       { return binary.LittleEndian.Uint32(a.buf[off:]) }
func (a *Arena) PutU32(off Ptr, v uint32) { binary.LittleEndian.PutUint32(a.buf[off:], v) }
func (a *Arena) U64(off Ptr) uint64       { return binary.LittleEndian.Uint64(a.buf[off:]) }
func (a *Arena) PutU64(off Ptr, v uint64) { binary.LittleEndian.PutUint64(a.buf[off:], v) }

func (a *Arena) I8(off Ptr) int8         { return int8(a.U8(off)) }
func (a *Arena) PutI8(off Ptr, v int8)   { a.PutU8(off, uint8(v)) }
func (a *Arena) I16(off Ptr) int16       { return int16(a.U16(off)) }
func (a *Arena) PutI16(off Ptr, v int16) { a.PutU16(off, uint16(v)) }
func (a *Arena) I32(off Ptr) int32       { return int32(a.U32(off)) }
func (a *Arena) PutI32(off Ptr, v int32) { a.PutU32(off, uint32(v)) }
func (a *Arena) I64(off Ptr) int64       { return int64(a.U64(off)) }
func (a *Arena) PutI64(off Ptr, v int64) { a.PutU64(off, uint64(v)) }

func (a *Arena) F32(off Ptr) float32       { return math.Float32frombits(a.U32(off)) }
func (a *Arena) PutF32(off Ptr, v float32) { a.PutU32(off, math.Float32bits(v)) }
func (a *Arena) F64(off Ptr) float64       { return math.Float64frombits(a.U64(off)) }
func (a *Arena) PutF64(off Ptr, v float64) { a.PutU64(off, math.Float64bits(v)) }

func (a *Arena) Bool(off Ptr) bool { return a.buf[off] != 0 }
func (a *Arena) PutBool(off Ptr, v bool) {
	if v {
		a.buf[off] = 1
	} else {
		a.buf[off] = 0
	}
}

// Pointer slots are plain u32 fields holding a Ptr.

func (a *Arena) Ptr(off Ptr) Ptr       { return Ptr(a.U32(off)) }
func (a *Arena) PutPtr(off Ptr, v Ptr) { a.PutU32(off, uint32(v)) }
