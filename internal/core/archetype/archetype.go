// Package archetype implements the world's storage backend. Entities
// holding the same component set share one archetype; each component is
// a contiguous arena-backed column, so iteration over a component walks
// a flat stride.
package archetype

import (
	"strings"

	"github.com/guerrero-dev/guerrero/internal/core/ecs"
	"github.com/guerrero-dev/guerrero/internal/core/layout"
	"github.com/guerrero-dev/guerrero/internal/core/memory"
	"github.com/guerrero-dev/guerrero/internal/core/view"
)

// compType caches everything the backend needs about one registered
// component type.
type compType struct {
	name string
	lay  *layout.SchemaLayout
	info *layout.BinaryInfo
	ops  *view.Ops
}

// column is one component's storage inside an archetype: a single arena
// region of rows, stride bytes apart.
type column struct {
	typ    *compType
	data   memory.Ptr
	stride uint32
}

func (c *column) cell(row int) memory.Ptr {
	return c.data + memory.Ptr(uint32(row)*c.stride)
}

// archetype groups the entities sharing one exact component set. Row i
// of every column belongs to entities[i]; removal swaps the last row in
// so rows stay dense.
type archetype struct {
	key      string
	names    []string // sorted
	byName   map[string]int
	columns  []column
	entities []ecs.Entity
	cap      int
}

const archetypeMinRows = 8

// archetypeKey is the canonical identity of a component set. Names are
// assumed sorted.
func archetypeKey(names []string) string {
	return strings.Join(names, "\x1f")
}

func (ar *archetype) has(name string) bool {
	_, ok := ar.byName[name]
	return ok
}

func (ar *archetype) col(name string) *column {
	i, ok := ar.byName[name]
	if !ok {
		return nil
	}
	return &ar.columns[i]
}

// matches reports whether the archetype holds every with component and
// none of the without components.
func (ar *archetype) matches(with, without []string) bool {
	for _, n := range with {
		if !ar.has(n) {
			return false
		}
	}
	for _, n := range without {
		if ar.has(n) {
			return false
		}
	}
	return true
}

// push appends a zeroed row for the entity and returns its index.
func (ar *archetype) push(a *memory.Arena, id ecs.Entity) (int, error) {
	if err := ar.ensureCap(a, len(ar.entities)+1); err != nil {
		return 0, err
	}
	row := len(ar.entities)
	ar.entities = append(ar.entities, id)
	for i := range ar.columns {
		c := &ar.columns[i]
		a.Zero(c.cell(row), c.stride)
	}
	return row, nil
}

// removeRow swap-removes the row. The vacated row's bytes are
// overwritten by the moved entity's; the caller is expected to have
// captured them first. Returns the entity moved into the row, or
// InvalidEntity if the last row was removed.
func (ar *archetype) removeRow(a *memory.Arena, row int) ecs.Entity {
	last := len(ar.entities) - 1
	moved := ecs.InvalidEntity
	if row != last {
		for i := range ar.columns {
			c := &ar.columns[i]
			a.Copy(c.cell(row), c.cell(last), c.stride)
		}
		moved = ar.entities[last]
		ar.entities[row] = moved
	}
	ar.entities = ar.entities[:last]
	return moved
}

// ensureCap grows every column to hold at least n rows. Growth
// allocates fresh regions, copies the live rows and frees the old
// regions; row offsets are not stable across it.
func (ar *archetype) ensureCap(a *memory.Arena, n int) error {
	if n <= ar.cap {
		return nil
	}
	newCap := ar.cap
	if newCap < archetypeMinRows {
		newCap = archetypeMinRows
	}
	for newCap < n {
		newCap *= 2
	}
	used := uint32(len(ar.entities))
	for i := range ar.columns {
		c := &ar.columns[i]
		data := a.Allocate(c.stride*uint32(newCap), "column", 0)
		if data == memory.NullPtr {
			return view.ErrOutOfMemory
		}
		if c.data != memory.NullPtr {
			a.Copy(data, c.data, c.stride*used)
			a.Free(c.data)
		}
		c.data = data
	}
	ar.cap = newCap
	return nil
}
