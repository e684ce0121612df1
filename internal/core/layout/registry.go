package layout

import (
	"fmt"
	"math"

	"github.com/guerrero-dev/guerrero/internal/core/observability/log"
)

type enumDef struct {
	name    string
	base    string
	members []EnumMember
	info    *BinaryInfo
}

// Registry owns the registered struct and enum schemas, the resolver memo,
// and the computed layouts. It has instance lifetime: a world (or a build
// tool invocation) constructs one and passes it around explicitly.
type Registry struct {
	log      log.Log
	structs  map[string][]FieldMeta
	enums    map[string]*enumDef
	layouts  map[string]*SchemaLayout
	resolved map[string]*BinaryInfo

	// computing guards recursive struct references during layout
	// calculation.
	computing map[string]bool
}

// NewRegistry builds an empty registry. A nil logger is replaced by a
// discard logger.
func NewRegistry(logger log.Log) *Registry {
	if logger == nil {
		logger = log.Discard()
	}
	return &Registry{
		log:       logger.With(log.String("component", "layout")),
		structs:   make(map[string][]FieldMeta),
		enums:     make(map[string]*enumDef),
		layouts:   make(map[string]*SchemaLayout),
		resolved:  make(map[string]*BinaryInfo),
		computing: make(map[string]bool),
	}
}

// RegisterStruct declares a struct schema. The layout is computed lazily on
// the first Layout call and memoized.
func (r *Registry) RegisterStruct(name string, fields []FieldMeta) error {
	if _, ok := r.structs[name]; ok {
		return fmt.Errorf("%w: struct %q", ErrDuplicateType, name)
	}
	if _, ok := r.enums[name]; ok {
		return fmt.Errorf("%w: %q is an enum", ErrDuplicateType, name)
	}
	r.structs[name] = fields
	r.log.Debug("struct registered", log.String("type", name), log.Int("fields", len(fields)))
	return nil
}

// RegisterEnum declares an enum with the given base integer type (default
// u8). Every member value must fit the base type's range; a value that does
// not is a hard registration error naming the offending member.
func (r *Registry) RegisterEnum(name, base string, members []EnumMember) error {
	if _, ok := r.enums[name]; ok {
		return fmt.Errorf("%w: enum %q", ErrDuplicateType, name)
	}
	if _, ok := r.structs[name]; ok {
		return fmt.Errorf("%w: %q is a struct", ErrDuplicateType, name)
	}
	if base == "" {
		base = "u8"
	}
	p, ok := primitives[base]
	if !ok || p.float || base == "bool" {
		return fmt.Errorf("%w: %q base %q", ErrUnknownEnumBase, name, base)
	}

	lo, hi := integerRange(base)
	for _, m := range members {
		if m.Value < lo || m.Value > hi {
			return fmt.Errorf("%w: enum %q member %q value %d exceeds %s range [%d, %d]",
				ErrEnumValueRange, name, m.Name, m.Value, base, lo, hi)
		}
	}

	baseInfo, err := r.Resolve(base)
	if err != nil {
		return err
	}
	r.enums[name] = &enumDef{
		name:    name,
		base:    base,
		members: members,
		info: &BinaryInfo{
			Type:      name,
			Kind:      KindEnum,
			Size:      baseInfo.Size,
			Alignment: baseInfo.Alignment,
			Signed:    baseInfo.Signed,
			EnumBase:  baseInfo,
			Members:   members,
		},
	}
	r.log.Debug("enum registered", log.String("type", name), log.String("base", base))
	return nil
}

// IsRegistered reports whether name refers to a registered struct or enum.
func (r *Registry) IsRegistered(name string) bool {
	_, s := r.structs[name]
	_, e := r.enums[name]
	return s || e
}

// StructNames lists the registered struct type names.
func (r *Registry) StructNames() []string {
	names := make([]string, 0, len(r.structs))
	for n := range r.structs {
		names = append(names, n)
	}
	return names
}

// Layout computes (and memoizes) the schema layout of a registered struct.
// The computation is a pure function of the field metadata and the layouts
// of previously registered types, so two runs over the same registry yield
// identical results.
func (r *Registry) Layout(name string) (*SchemaLayout, error) {
	if lay, ok := r.layouts[name]; ok {
		return lay, nil
	}
	fields, ok := r.structs[name]
	if !ok {
		return nil, fmt.Errorf("%w: struct %q", ErrUnresolvedType, name)
	}
	if r.computing[name] {
		return nil, fmt.Errorf("%w: recursive struct %q embeds itself by value", ErrUnresolvedType, name)
	}
	r.computing[name] = true
	defer delete(r.computing, name)

	lay, err := r.calculate(name, fields)
	if err != nil {
		return nil, err
	}
	r.layouts[name] = lay
	return lay, nil
}

// bit container shared by consecutive packable fields
type bitContainer struct {
	open   bool
	offset uint32
	used   uint32
}

const bitContainerBits = 32

func (r *Registry) calculate(name string, fields []FieldMeta) (*SchemaLayout, error) {
	lay := &SchemaLayout{
		TypeName:  name,
		Alignment: 1,
		byKey:     make(map[string]int, len(fields)),
	}
	var offset uint32
	var container bitContainer

	for _, f := range fields {
		info, err := r.Resolve(f.Type)
		if err != nil {
			return nil, fmt.Errorf("struct %q field %q: %w", name, f.Key, err)
		}

		width, err := packWidth(f, info)
		if err != nil {
			return nil, fmt.Errorf("struct %q field %q: %w", name, f.Key, err)
		}

		if width > 0 {
			// Packable: accumulate into the open container, or start a
			// fresh one when this field would overflow 32 bits.
			if !container.open || container.used+width > bitContainerBits {
				offset = alignUp32(offset, PtrAlign)
				container = bitContainer{open: true, offset: offset}
				offset += 4
				if lay.Alignment < PtrAlign {
					lay.Alignment = PtrAlign
				}
			}
			lay.byKey[f.Key] = len(lay.Properties)
			lay.Properties = append(lay.Properties, PropertyLayout{
				Key:       f.Key,
				Type:      f.Type,
				Offset:    container.offset,
				Size:      4,
				Alignment: PtrAlign,
				Binary:    info,
				BitOffset: container.used,
				BitWidth:  width,
			})
			container.used += width
			continue
		}

		// A non-packable field closes any open container.
		container = bitContainer{}

		offset = alignUp32(offset, info.Alignment)
		lay.byKey[f.Key] = len(lay.Properties)
		lay.Properties = append(lay.Properties, PropertyLayout{
			Key:       f.Key,
			Type:      f.Type,
			Offset:    offset,
			Size:      info.Size,
			Alignment: info.Alignment,
			Binary:    info,
		})
		offset += info.Size
		if info.Alignment > lay.Alignment {
			lay.Alignment = info.Alignment
		}
		lay.HasDynamicData = lay.HasDynamicData || info.Dynamic
	}

	lay.TotalSize = alignUp32(offset, lay.Alignment)
	if lay.TotalSize == 0 {
		// Zero-field structs still occupy one byte so entity rows stay
		// addressable.
		lay.TotalSize = 1
	}
	r.log.Debug("layout computed",
		log.String("type", name),
		log.Uint32("size", lay.TotalSize),
		log.Uint32("align", lay.Alignment),
		log.Bool("dynamic", lay.HasDynamicData))
	return lay, nil
}

// packWidth returns the bit width a field occupies inside a shared
// container, or 0 when the field is not bit-packable. Booleans pack
// implicitly; integers pack only when the schema marks them with an
// explicit width.
func packWidth(f FieldMeta, info *BinaryInfo) (uint32, error) {
	if info.Kind == KindPrimitive && info.Type == "bool" {
		if f.BitWidth > 1 {
			return 0, fmt.Errorf("%w: bool field declared %d bits", ErrInvalidBitWidth, f.BitWidth)
		}
		return 1, nil
	}
	if f.BitWidth == 0 {
		return 0, nil
	}
	if info.Kind != KindPrimitive || info.Float {
		return 0, fmt.Errorf("%w: %d bits on non-integer type %q", ErrInvalidBitWidth, f.BitWidth, f.Type)
	}
	if f.BitWidth > bitContainerBits || f.BitWidth > info.Size*8 {
		return 0, fmt.Errorf("%w: %d bits on type %q", ErrInvalidBitWidth, f.BitWidth, f.Type)
	}
	return f.BitWidth, nil
}

func integerRange(base string) (int64, int64) {
	switch base {
	case "u8":
		return 0, math.MaxUint8
	case "u16":
		return 0, math.MaxUint16
	case "u32":
		return 0, math.MaxUint32
	case "u64":
		return 0, math.MaxInt64 // member values are declared as int64
	case "i8":
		return math.MinInt8, math.MaxInt8
	case "i16":
		return math.MinInt16, math.MaxInt16
	case "i32":
		return math.MinInt32, math.MaxInt32
	case "i64":
		return math.MinInt64, math.MaxInt64
	}
	return 0, 0
}
