package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// primitive size/alignment table. Alignment always equals size for
// primitives.
var primitives = map[string]struct {
	size   uint32
	signed bool
	float  bool
}{
	"u8":   {1, false, false},
	"i8":   {1, true, false},
	"bool": {1, false, false},
	"u16":  {2, false, false},
	"i16":  {2, true, false},
	"u32":  {4, false, false},
	"i32":  {4, true, false},
	"f32":  {4, false, true},
	"u64":  {8, false, false},
	"i64":  {8, true, false},
	"f64":  {8, false, true},
}

// Resolve turns a type expression from the schema grammar into its binary
// description. Results are memoized by canonical expression. An expression
// that is not a primitive, a registered struct or enum, or parseable
// collection syntax is a hard error.
func (r *Registry) Resolve(expr string) (*BinaryInfo, error) {
	expr = strings.TrimSpace(expr)
	if info, ok := r.resolved[expr]; ok {
		return info, nil
	}
	info, err := r.resolve(expr)
	if err != nil {
		return nil, err
	}
	r.resolved[expr] = info
	return info, nil
}

func (r *Registry) resolve(expr string) (*BinaryInfo, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty type expression", ErrUnresolvedType)
	}

	// Unions bind loosest: split on top-level '|'.
	if parts := splitTop(expr, '|'); len(parts) > 1 {
		return r.resolveUnion(expr, parts)
	}

	if p, ok := primitives[expr]; ok {
		return &BinaryInfo{
			Type:      expr,
			Kind:      KindPrimitive,
			Size:      p.size,
			Alignment: p.size,
			Signed:    p.signed,
			Float:     p.float,
		}, nil
	}

	switch expr {
	case "str":
		return pointerSlot(expr, KindString), nil
	case "sparseset":
		return pointerSlot(expr, KindSparseSet), nil
	}

	// T[] dynamic array shorthand.
	if strings.HasSuffix(expr, "[]") {
		elem, err := r.Resolve(expr[:len(expr)-2])
		if err != nil {
			return nil, err
		}
		info := pointerSlot(expr, KindDynamicArray)
		info.Element = elem
		return info, nil
	}

	// Bracketed forms: fixed array [T, N] or tuple [T1, T2, ...].
	if strings.HasPrefix(expr, "[") && strings.HasSuffix(expr, "]") {
		return r.resolveBracketed(expr)
	}

	// Generic forms: fixed_arr<T,N>, arr<T>, map<K,V>, set<T>.
	if open := strings.IndexByte(expr, '<'); open > 0 && strings.HasSuffix(expr, ">") {
		return r.resolveGeneric(expr, expr[:open], expr[open+1:len(expr)-1])
	}

	// Bare identifier: previously registered struct or enum.
	if _, ok := r.structs[expr]; ok {
		lay, err := r.Layout(expr)
		if err != nil {
			return nil, err
		}
		return &BinaryInfo{
			Type:      expr,
			Kind:      KindStruct,
			Size:      lay.TotalSize,
			Alignment: lay.Alignment,
			Dynamic:   lay.HasDynamicData,
			Layout:    lay,
		}, nil
	}
	if e, ok := r.enums[expr]; ok {
		return e.info, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnresolvedType, expr)
}

func pointerSlot(expr string, kind Kind) *BinaryInfo {
	return &BinaryInfo{
		Type:      expr,
		Kind:      kind,
		Size:      PtrSize,
		Alignment: PtrAlign,
		Dynamic:   true,
	}
}

func (r *Registry) resolveBracketed(expr string) (*BinaryInfo, error) {
	inner := expr[1 : len(expr)-1]
	parts := splitTop(inner, ',')
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedType, expr)
	}

	// [T, N] with integer N is a fixed array; anything else is a tuple.
	if len(parts) == 2 {
		if n, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32); err == nil {
			return r.resolveFixedArray(expr, parts[0], uint32(n))
		}
	}
	return r.resolveTuple(expr, parts)
}

func (r *Registry) resolveGeneric(expr, name, args string) (*BinaryInfo, error) {
	parts := splitTop(args, ',')
	switch name {
	case "fixed_arr":
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %q wants <T,N>", ErrBadFixedArray, expr)
		}
		n, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q count %q", ErrBadFixedArray, expr, parts[1])
		}
		return r.resolveFixedArray(expr, parts[0], uint32(n))
	case "arr":
		if len(parts) != 1 {
			return nil, fmt.Errorf("%w: %q wants <T>", ErrBadGeneric, expr)
		}
		elem, err := r.Resolve(parts[0])
		if err != nil {
			return nil, err
		}
		info := pointerSlot(expr, KindDynamicArray)
		info.Element = elem
		return info, nil
	case "map":
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %q wants <K,V>", ErrBadGeneric, expr)
		}
		key, err := r.Resolve(parts[0])
		if err != nil {
			return nil, err
		}
		val, err := r.Resolve(parts[1])
		if err != nil {
			return nil, err
		}
		info := pointerSlot(expr, KindDynamicMap)
		info.Key, info.Value = key, val
		return info, nil
	case "set":
		if len(parts) != 1 {
			return nil, fmt.Errorf("%w: %q wants <T>", ErrBadGeneric, expr)
		}
		elem, err := r.Resolve(parts[0])
		if err != nil {
			return nil, err
		}
		info := pointerSlot(expr, KindDynamicSet)
		info.Element = elem
		return info, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnresolvedType, expr)
}

func (r *Registry) resolveFixedArray(expr, elemExpr string, count uint32) (*BinaryInfo, error) {
	elem, err := r.Resolve(elemExpr)
	if err != nil {
		return nil, err
	}
	return &BinaryInfo{
		Type:      expr,
		Kind:      KindFixedArray,
		Size:      elem.Size * count,
		Alignment: elem.Alignment,
		Dynamic:   elem.Dynamic,
		Element:   elem,
		Count:     count,
	}, nil
}

// resolveTuple lays out tuple elements sequentially with the same padding
// rule as struct fields.
func (r *Registry) resolveTuple(expr string, parts []string) (*BinaryInfo, error) {
	info := &BinaryInfo{
		Type:      expr,
		Kind:      KindTuple,
		Alignment: 1,
	}
	var offset uint32
	for _, part := range parts {
		elem, err := r.Resolve(part)
		if err != nil {
			return nil, err
		}
		offset = alignUp32(offset, elem.Alignment)
		info.Elements = append(info.Elements, elem)
		info.ElementOffsets = append(info.ElementOffsets, offset)
		offset += elem.Size
		if elem.Alignment > info.Alignment {
			info.Alignment = elem.Alignment
		}
		info.Dynamic = info.Dynamic || elem.Dynamic
	}
	info.Size = alignUp32(offset, info.Alignment)
	return info, nil
}

// resolveUnion computes the tagged-union representation: one tag byte,
// padding up to the widest variant alignment, then the shared data region.
// A union whose variants are all pointer-sized dynamic degenerates to a
// single tagged-pointer slot; an optional ("T | undefined") dynamic type
// needs no tag at all since NullPtr already encodes the null.
func (r *Registry) resolveUnion(expr string, parts []string) (*BinaryInfo, error) {
	info := &BinaryInfo{
		Type: expr,
		Kind: KindUnion,
	}
	allPointer := true
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "undefined" {
			info.Nullable = true
			continue
		}
		v, err := r.Resolve(part)
		if err != nil {
			return nil, err
		}
		info.Variants = append(info.Variants, v)
		info.Dynamic = info.Dynamic || v.Dynamic
		if !(v.Dynamic && v.Size == PtrSize) {
			allPointer = false
		}
	}
	if len(info.Variants) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyUnion, expr)
	}

	// Optional dynamic value: the null pointer sentinel is the tag.
	if info.Nullable && len(info.Variants) == 1 && info.Variants[0].Dynamic && info.Variants[0].Size == PtrSize {
		slot := *info.Variants[0]
		slot.Type = expr
		slot.Nullable = true
		return &slot, nil
	}

	if allPointer {
		info.TaggedPointer = true
		info.Size = PtrSize
		info.Alignment = PtrAlign
		info.Dynamic = true
		return info, nil
	}

	var maxSize, maxAlign uint32 = 0, 1
	for _, v := range info.Variants {
		if v.Size > maxSize {
			maxSize = v.Size
		}
		if v.Alignment > maxAlign {
			maxAlign = v.Alignment
		}
	}
	info.TagOffset = 0
	info.DataOffset = alignUp32(1, maxAlign)
	info.Size = info.DataOffset + maxSize
	info.Alignment = maxAlign
	return info, nil
}

// splitTop splits expr on sep at bracket depth zero, honoring '<>', '[]'
// and '()' nesting.
func splitTop(expr string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '<', '[', '(':
			depth++
		case '>', ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(expr[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(expr[start:]))
	return parts
}

func alignUp32(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}
