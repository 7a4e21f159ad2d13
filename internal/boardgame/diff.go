package boardgame

import (
	"maps"
	"slices"
)

// mapDiff is the key-level difference between two projections.
type mapDiff[V any] struct {
	Added   map[string]V
	Changed map[string]V
	Removed map[string]V
}

// diffMaps compares before and after. Added and Changed hold the new values,
// Removed holds the old ones.
func diffMaps[V any](before, after map[string]V, equal func(V, V) bool) mapDiff[V] {
	d := mapDiff[V]{
		Added:   make(map[string]V),
		Changed: make(map[string]V),
		Removed: make(map[string]V),
	}
	for id, v := range after {
		old, ok := before[id]
		switch {
		case !ok:
			d.Added[id] = v
		case !equal(old, v):
			d.Changed[id] = v
		}
	}
	for id, v := range before {
		if _, ok := after[id]; !ok {
			d.Removed[id] = v
		}
	}
	return d
}

// Empty reports whether the two maps were equal.
func (d mapDiff[V]) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// mapsEqual reports whether before and after hold the same keys with equal values.
func mapsEqual[V any](before, after map[string]V, equal func(V, V) bool) bool {
	return maps.EqualFunc(before, after, equal)
}

// merged returns a copy of base with the entries of updates applied and the
// keys in remove deleted first.
func merged[V any](base map[string]V, remove []string, updates map[string]V) map[string]V {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]V, len(updates))
	}
	for _, id := range remove {
		delete(out, id)
	}
	maps.Copy(out, updates)
	return out
}

// sortedValues returns the values of m ordered by key, so listeners see
// deterministic sequences.
func sortedValues[V any](m map[string]V) []V {
	keys := slices.Sorted(maps.Keys(m))
	values := make([]V, 0, len(keys))
	for _, k := range keys {
		values = append(values, m[k])
	}
	return values
}
