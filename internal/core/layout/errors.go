package layout

import "errors"

// Schema and type-resolution errors. These surface at registration or
// layout-calculation time and indicate programmer error in component
// declarations, so they are never swallowed downstream.
var (
	ErrUnresolvedType  = errors.New("unresolvable type")
	ErrDuplicateType   = errors.New("type already registered")
	ErrEnumValueRange  = errors.New("enum member value out of base type range")
	ErrInvalidBitWidth = errors.New("invalid bit width")
	ErrEmptyUnion      = errors.New("union has no variants")
	ErrBadFixedArray   = errors.New("malformed fixed array type")
	ErrBadGeneric      = errors.New("malformed generic type")
	ErrUnknownEnumBase = errors.New("unknown enum base type")
)
