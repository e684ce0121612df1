package layout

// Kind classifies a resolved binary type. The set is closed: every type
// expression the schema grammar admits resolves to exactly one of these.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindEnum
	KindStruct
	KindFixedArray
	KindTuple
	KindUnion
	KindString
	KindDynamicArray
	KindDynamicMap
	KindDynamicSet
	KindSparseSet
)

// Pointer slots: every dynamic value (string, dynamic collection, sparse
// set, tagged-pointer union) occupies one pointer-sized, pointer-aligned
// field holding an arena offset.
const (
	PtrSize  uint32 = 4
	PtrAlign uint32 = 4
)

// EnumMember is one named value of a registered enum.
type EnumMember struct {
	Name  string
	Value int64
}

// BinaryInfo is the resolved binary description of one type expression:
// its size, alignment, dynamic-ness, and the per-kind metadata the runtime
// views need to reconstruct accessors.
type BinaryInfo struct {
	Type      string // canonical type expression
	Kind      Kind
	Size      uint32
	Alignment uint32
	// Dynamic is true when a value of this type owns heap-allocated
	// sub-data (directly or transitively).
	Dynamic bool

	// Collections
	Element *BinaryInfo // fixed/dynamic array and set element
	Key     *BinaryInfo // map key
	Value   *BinaryInfo // map value
	Count   uint32      // fixed array element count

	// Tuples
	Elements       []*BinaryInfo
	ElementOffsets []uint32

	// Unions
	Variants []*BinaryInfo
	Nullable bool // union carries an undefined variant
	// TaggedPointer marks the degenerate representation used when every
	// variant is pointer-sized dynamic: the union collapses to one slot.
	TaggedPointer bool
	TagOffset     uint32
	DataOffset    uint32

	// Enums
	EnumBase *BinaryInfo
	Members  []EnumMember

	// Structs
	Layout *SchemaLayout

	// Signedness of integer primitives, used for bitfield handling.
	Signed bool
	Float  bool
}

// PropertyLayout places one declared field inside a struct layout.
type PropertyLayout struct {
	Key       string
	Type      string
	Offset    uint32
	Size      uint32
	Alignment uint32
	Binary    *BinaryInfo

	// Bit-packed fields share a 4-byte container; Offset then addresses
	// the container and BitOffset/BitWidth locate the field inside it.
	BitOffset uint32
	BitWidth  uint32
}

// Packed reports whether the property lives inside a shared bit container.
func (p *PropertyLayout) Packed() bool { return p.BitWidth > 0 }

// SchemaLayout is the computed binary layout of one registered struct
// type.
//
// Invariants: TotalSize is a multiple of Alignment, and no two properties'
// byte ranges overlap except bit-packed properties sharing a container.
type SchemaLayout struct {
	TypeName       string
	TotalSize      uint32
	Alignment      uint32
	HasDynamicData bool
	Properties     []PropertyLayout

	byKey map[string]int
}

// Property returns the layout of the named field.
func (l *SchemaLayout) Property(key string) (*PropertyLayout, bool) {
	i, ok := l.byKey[key]
	if !ok {
		return nil, false
	}
	return &l.Properties[i], true
}

// FieldMeta is one declared field of a struct schema. BitWidth is only
// meaningful for integer fields that opt into bit packing; booleans pack
// implicitly with a width of 1.
type FieldMeta struct {
	Key      string
	Type     string
	BitWidth uint32
}
