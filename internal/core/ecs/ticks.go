package ecs

// Ticks tracks the world's fixed-step counter and the last tick each
// component type was written. Change detection and query cache
// validation both key off it.
type Ticks struct {
	world      int64
	components map[string]int64
}

func NewTicks() *Ticks {
	return &Ticks{components: make(map[string]int64)}
}

// World returns the current fixed-step tick.
func (t *Ticks) World() int64 { return t.world }

// Advance moves the world to the next tick and returns it.
func (t *Ticks) Advance() int64 {
	t.world++
	return t.world
}

// Touch records a write to the named component type at the current tick.
func (t *Ticks) Touch(component string) {
	t.components[component] = t.world
}

// Component returns the last tick the named component type was written,
// or -1 if it never was.
func (t *Ticks) Component(name string) int64 {
	if tick, ok := t.components[name]; ok {
		return tick
	}
	return -1
}

// AnyWrittenSince reports whether any of the named component types was
// written after the given tick.
func (t *Ticks) AnyWrittenSince(names []string, since int64) bool {
	for _, n := range names {
		if t.Component(n) > since {
			return true
		}
	}
	return false
}

// AnyWrittenAtOrAfter reports whether any of the named component types
// was written at or after the given tick. Query caches use the
// inclusive form: a write on the same tick a cache was validated still
// invalidates it.
func (t *Ticks) AnyWrittenAtOrAfter(names []string, tick int64) bool {
	for _, n := range names {
		if t.Component(n) >= tick {
			return true
		}
	}
	return false
}
