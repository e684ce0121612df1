package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocateFree(t *testing.T) {
	a := NewArena(64<<10, nil)

	p1 := a.Allocate(100, "test", NullPtr)
	require.NotEqual(t, NullPtr, p1)
	p2 := a.Allocate(200, "test", NullPtr)
	require.NotEqual(t, NullPtr, p2)
	assert.NotEqual(t, p1, p2)

	// Payloads are granularity-aligned.
	assert.Zero(t, uint32(p1)%8)
	assert.Zero(t, uint32(p2)%8)

	stats := a.Stats()
	assert.Equal(t, uint64(2), stats.AllocCount)
	assert.NotZero(t, stats.LiveBytes)

	a.Free(p1)
	a.Free(p2)
	stats = a.Stats()
	assert.Equal(t, uint64(2), stats.FreeCount)
	assert.Zero(t, stats.LiveBytes)
}

func TestArenaReuseAfterFree(t *testing.T) {
	a := NewArena(64<<10, nil)

	p1 := a.Allocate(64, "test", NullPtr)
	require.NotEqual(t, NullPtr, p1)
	a.Free(p1)

	// The freed block satisfies an identical request again.
	p2 := a.Allocate(64, "test", NullPtr)
	assert.Equal(t, p1, p2)
}

func TestArenaCoalescing(t *testing.T) {
	a := NewArena(4096, nil)

	// Carve the arena into adjacent blocks, free them all, then ask for
	// one block near the full size. Only coalescing makes that possible.
	var ptrs []Ptr
	for i := 0; i < 8; i++ {
		p := a.Allocate(256, "test", NullPtr)
		require.NotEqual(t, NullPtr, p)
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		a.Free(p)
	}

	big := a.Allocate(2048, "test", NullPtr)
	assert.NotEqual(t, NullPtr, big)
}

func TestArenaExhaustion(t *testing.T) {
	a := NewArena(1024, nil)

	assert.Equal(t, NullPtr, a.Allocate(4096, "test", NullPtr))

	// Exhaustion is not sticky: smaller requests still succeed.
	p := a.Allocate(64, "test", NullPtr)
	assert.NotEqual(t, NullPtr, p)
}

func TestArenaResize(t *testing.T) {
	a := NewArena(1024, nil)

	p1 := a.Allocate(512, "test", NullPtr)
	require.NotEqual(t, NullPtr, p1)
	require.Equal(t, NullPtr, a.Allocate(2048, "test", NullPtr))

	live := a.Stats().LiveBytes
	a.Resize(8192)
	assert.Equal(t, 8192, a.Size())
	assert.Equal(t, live, a.Stats().LiveBytes)

	p2 := a.Allocate(2048, "test", NullPtr)
	assert.NotEqual(t, NullPtr, p2)

	// Data written before the resize survives it.
	a.PutU32(p1, 0xDEADBEEF)
	a.Resize(16384)
	assert.Equal(t, uint32(0xDEADBEEF), a.U32(p1))
}

func TestArenaAccessors(t *testing.T) {
	a := NewArena(4096, nil)
	p := a.Allocate(64, "test", NullPtr)
	require.NotEqual(t, NullPtr, p)

	a.PutU8(p, 0xAB)
	assert.Equal(t, uint8(0xAB), a.U8(p))
	a.PutU16(p+2, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), a.U16(p+2))
	a.PutU32(p+4, 0xCAFEBABE)
	assert.Equal(t, uint32(0xCAFEBABE), a.U32(p+4))
	a.PutU64(p+8, 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), a.U64(p+8))
	a.PutI32(p+16, -42)
	assert.Equal(t, int32(-42), a.I32(p+16))
	a.PutF32(p+20, 3.5)
	assert.Equal(t, float32(3.5), a.F32(p+20))
	a.PutF64(p+24, -2.25)
	assert.Equal(t, -2.25, a.F64(p+24))
	a.PutBool(p+32, true)
	assert.True(t, a.Bool(p+32))
	a.PutPtr(p+36, p)
	assert.Equal(t, p, a.Ptr(p+36))

	a.Zero(p, 64)
	assert.Zero(t, a.U64(p))
	assert.False(t, a.Bool(p+32))
}

func TestArenaOwnerTracking(t *testing.T) {
	a := NewArena(4096, nil)
	a.EnableOwnerTracking()

	p := a.Allocate(32, "arr.elems", Ptr(16))
	require.NotEqual(t, NullPtr, p)

	tag, owner, ok := a.OwnedBy(p)
	require.True(t, ok)
	assert.Equal(t, "arr.elems", tag)
	assert.Equal(t, Ptr(16), owner)

	a.Free(p)
	_, _, ok = a.OwnedBy(p)
	assert.False(t, ok)
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint32(0), AlignUp(0, 8))
	assert.Equal(t, uint32(8), AlignUp(1, 8))
	assert.Equal(t, uint32(8), AlignUp(8, 8))
	assert.Equal(t, uint32(16), AlignUp(9, 8))
	assert.Equal(t, uint32(4), AlignUp(3, 4))
}

func BenchmarkArenaAllocateFree(b *testing.B) {
	a := NewArena(1<<20, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := a.Allocate(64, "bench", NullPtr)
		if p == NullPtr {
			b.Fatal("arena exhausted")
		}
		a.Free(p)
	}
}
