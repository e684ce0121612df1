// Package sequence holds small slice and map helpers shared across the
// engine.
package sequence

import "sort"

// Map applies f to every element of in.
func Map[T, U any](in []T, f func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

// SortedCopy returns a sorted copy of in, leaving in untouched.
func SortedCopy[T ~string | ~uint32](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
