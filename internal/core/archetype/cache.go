package archetype

import (
	"strings"

	"github.com/guerrero-dev/guerrero/internal/core/ecs"
	"github.com/guerrero-dev/guerrero/pkg/sequence"
)

// cacheEntry is one memoized query result: the matching entity ids at
// validation time. Replay filters out entities that died since; any
// write to an involved component type at or after validatedAt throws
// the entry away entirely.
type cacheEntry struct {
	with        []string
	without     []string
	involved    []string
	entities    []ecs.Entity
	validatedAt int64
}

// CacheStats reports query cache effectiveness.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

type queryCache struct {
	entries map[string]*cacheEntry
	hits    uint64
	misses  uint64
}

func newQueryCache() *queryCache {
	return &queryCache{entries: make(map[string]*cacheEntry)}
}

// querySignature canonicalizes a filter pair. The returned slices are
// sorted copies safe to retain.
func querySignature(with, without []string) (sig string, w, wo []string) {
	w = sequence.SortedCopy(with)
	wo = sequence.SortedCopy(without)
	return strings.Join(w, ",") + "|" + strings.Join(wo, ","), w, wo
}

func (qc *queryCache) stats() CacheStats {
	return CacheStats{Hits: qc.hits, Misses: qc.misses, Entries: len(qc.entries)}
}

func (qc *queryCache) clear() {
	qc.entries = make(map[string]*cacheEntry)
}
