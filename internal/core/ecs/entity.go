package ecs

import (
	"github.com/guerrero-dev/guerrero/internal/core/memory"
)

// Entity is an opaque identifier; identity only, no payload. Ids of
// deleted entities are recycled from a free list before the counter is
// advanced, and a reused id starts fresh; there is no resurrection of a
// previous incarnation's data.
type Entity uint32

// InvalidEntity is the zero id; no live entity ever has it.
const InvalidEntity Entity = 0

// ComponentInit names a component and optionally seeds its freshly zeroed
// storage. A nil Init leaves the component zero-valued.
type ComponentInit struct {
	Name string
	Init func(a *memory.Arena, off memory.Ptr) error
}

// Component declares a bare component with zero-value storage.
func Component(name string) ComponentInit {
	return ComponentInit{Name: name}
}

// EntityDefinition is a declarative entity subtree: the root's components
// and its children, spawned depth-first with the root as their parent.
type EntityDefinition struct {
	Components []ComponentInit
	Children   []EntityDefinition
}
