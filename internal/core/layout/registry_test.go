package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLayout(t *testing.T, r *Registry, name string, fields []FieldMeta) *SchemaLayout {
	t.Helper()
	require.NoError(t, r.RegisterStruct(name, fields))
	lay, err := r.Layout(name)
	require.NoError(t, err)
	return lay
}

func TestLayoutPaddingAndOrder(t *testing.T) {
	r := NewRegistry(nil)
	lay := mustLayout(t, r, "mixed", []FieldMeta{
		{Key: "a", Type: "u8"},
		{Key: "b", Type: "u32"},
		{Key: "c", Type: "u16"},
	})

	assert.Equal(t, uint32(12), lay.TotalSize)
	assert.Equal(t, uint32(4), lay.Alignment)

	a, _ := lay.Property("a")
	b, _ := lay.Property("b")
	c, _ := lay.Property("c")
	assert.Equal(t, uint32(0), a.Offset)
	assert.Equal(t, uint32(4), b.Offset)
	assert.Equal(t, uint32(8), c.Offset)
	assert.False(t, lay.HasDynamicData)
}

func TestLayoutDeterminism(t *testing.T) {
	fields := []FieldMeta{
		{Key: "id", Type: "u64"},
		{Key: "name", Type: "str"},
		{Key: "hp", Type: "u32", BitWidth: 10},
		{Key: "alive", Type: "bool"},
		{Key: "tags", Type: "set<u32>"},
	}

	first := mustLayout(t, NewRegistry(nil), "thing", fields)
	second := mustLayout(t, NewRegistry(nil), "thing", fields)

	assert.Equal(t, first.TotalSize, second.TotalSize)
	assert.Equal(t, first.Alignment, second.Alignment)
	for i := range first.Properties {
		assert.Equal(t, first.Properties[i].Offset, second.Properties[i].Offset)
		assert.Equal(t, first.Properties[i].BitOffset, second.Properties[i].BitOffset)
	}
}

func TestLayoutBitPacking(t *testing.T) {
	r := NewRegistry(nil)
	lay := mustLayout(t, r, "status", []FieldMeta{
		{Key: "hp", Type: "u32", BitWidth: 10},
		{Key: "stunned", Type: "bool"},
		{Key: "team", Type: "u32", BitWidth: 3},
	})

	// All three share one 4-byte container.
	assert.Equal(t, uint32(4), lay.TotalSize)

	hp, _ := lay.Property("hp")
	st, _ := lay.Property("stunned")
	tm, _ := lay.Property("team")
	assert.Equal(t, uint32(0), hp.Offset)
	assert.Equal(t, uint32(0), st.Offset)
	assert.Equal(t, uint32(0), tm.Offset)
	assert.Equal(t, uint32(0), hp.BitOffset)
	assert.Equal(t, uint32(10), st.BitOffset)
	assert.Equal(t, uint32(11), tm.BitOffset)
	assert.True(t, hp.Packed())
}

func TestLayoutBitContainerOverflow(t *testing.T) {
	r := NewRegistry(nil)
	lay := mustLayout(t, r, "wide", []FieldMeta{
		{Key: "a", Type: "u32", BitWidth: 20},
		{Key: "b", Type: "u32", BitWidth: 20},
	})

	// 20+20 overflows one container; the second field opens a new one.
	assert.Equal(t, uint32(8), lay.TotalSize)
	a, _ := lay.Property("a")
	b, _ := lay.Property("b")
	assert.Equal(t, uint32(0), a.Offset)
	assert.Equal(t, uint32(4), b.Offset)
	assert.Equal(t, uint32(0), b.BitOffset)
}

func TestLayoutContainerClosedByPlainField(t *testing.T) {
	r := NewRegistry(nil)
	lay := mustLayout(t, r, "interleaved", []FieldMeta{
		{Key: "a", Type: "u32", BitWidth: 4},
		{Key: "x", Type: "f32"},
		{Key: "b", Type: "u32", BitWidth: 4},
	})

	// The plain f32 closes the first container; b starts a second one.
	a, _ := lay.Property("a")
	x, _ := lay.Property("x")
	b, _ := lay.Property("b")
	assert.Equal(t, uint32(0), a.Offset)
	assert.Equal(t, uint32(4), x.Offset)
	assert.Equal(t, uint32(8), b.Offset)
	assert.Equal(t, uint32(0), b.BitOffset)
	assert.Equal(t, uint32(12), lay.TotalSize)
}

func TestLayoutInvalidBitWidths(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.RegisterStruct("bad_float", []FieldMeta{
		{Key: "f", Type: "f32", BitWidth: 8},
	}))
	_, err := r.Layout("bad_float")
	assert.ErrorIs(t, err, ErrInvalidBitWidth)

	require.NoError(t, r.RegisterStruct("bad_width", []FieldMeta{
		{Key: "n", Type: "u8", BitWidth: 12},
	}))
	_, err = r.Layout("bad_width")
	assert.ErrorIs(t, err, ErrInvalidBitWidth)
}

func TestLayoutZeroFieldStruct(t *testing.T) {
	r := NewRegistry(nil)
	lay := mustLayout(t, r, "marker", nil)
	assert.Equal(t, uint32(1), lay.TotalSize)
}

func TestLayoutNestedStruct(t *testing.T) {
	r := NewRegistry(nil)
	mustLayout(t, r, "inner", []FieldMeta{
		{Key: "v", Type: "u64"},
	})
	lay := mustLayout(t, r, "outer", []FieldMeta{
		{Key: "tag", Type: "u8"},
		{Key: "in", Type: "inner"},
	})

	in, _ := lay.Property("in")
	assert.Equal(t, uint32(8), in.Offset)
	assert.Equal(t, uint32(16), lay.TotalSize)
}

func TestLayoutRecursiveStructRejected(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterStruct("ouroboros", []FieldMeta{
		{Key: "self", Type: "ouroboros"},
	}))
	_, err := r.Layout("ouroboros")
	assert.ErrorIs(t, err, ErrUnresolvedType)
}

func TestLayoutDynamicFields(t *testing.T) {
	r := NewRegistry(nil)
	lay := mustLayout(t, r, "bag", []FieldMeta{
		{Key: "name", Type: "str"},
		{Key: "items", Type: "arr<u32>"},
		{Key: "lookup", Type: "map<u32, str>"},
	})

	assert.True(t, lay.HasDynamicData)
	assert.Equal(t, uint32(12), lay.TotalSize)
	for _, p := range lay.Properties {
		assert.Equal(t, PtrSize, p.Size)
	}
}

func TestEnumRegistration(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterEnum("color", "u8", []EnumMember{
		{Name: "red", Value: 0},
		{Name: "green", Value: 1},
		{Name: "blue", Value: 255},
	}))

	info, err := r.Resolve("color")
	require.NoError(t, err)
	assert.Equal(t, KindEnum, info.Kind)
	assert.Equal(t, uint32(1), info.Size)
}

func TestEnumMemberOutOfRange(t *testing.T) {
	r := NewRegistry(nil)
	err := r.RegisterEnum("oversized", "u8", []EnumMember{
		{Name: "huge", Value: 300},
	})
	require.ErrorIs(t, err, ErrEnumValueRange)
	assert.Contains(t, err.Error(), `member "huge" value 300 exceeds u8 range [0, 255]`)

	err = r.RegisterEnum("negative", "u16", []EnumMember{
		{Name: "below", Value: -1},
	})
	assert.ErrorIs(t, err, ErrEnumValueRange)
}

func TestEnumBadBase(t *testing.T) {
	r := NewRegistry(nil)
	assert.ErrorIs(t, r.RegisterEnum("e1", "f32", nil), ErrUnknownEnumBase)
	assert.ErrorIs(t, r.RegisterEnum("e2", "bool", nil), ErrUnknownEnumBase)
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterStruct("dup", nil))
	assert.ErrorIs(t, r.RegisterStruct("dup", nil), ErrDuplicateType)
	assert.ErrorIs(t, r.RegisterEnum("dup", "u8", nil), ErrDuplicateType)
}
