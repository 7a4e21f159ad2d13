package boardgame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intEqual(a, b int) bool { return a == b }

func TestDiffMaps(t *testing.T) {
	before := map[string]int{"a": 1, "b": 2, "c": 3}
	after := map[string]int{"b": 2, "c": 30, "d": 4}

	d := diffMaps(before, after, intEqual)

	assert.Equal(t, map[string]int{"d": 4}, d.Added)
	assert.Equal(t, map[string]int{"c": 30}, d.Changed)
	assert.Equal(t, map[string]int{"a": 1}, d.Removed)
	assert.False(t, d.Empty())
	assert.False(t, mapsEqual(before, after, intEqual))
}

func TestDiffMapsOfEqualMapsIsEmpty(t *testing.T) {
	m := map[string]int{"a": 1}
	assert.True(t, diffMaps(m, map[string]int{"a": 1}, intEqual).Empty())
	assert.True(t, diffMaps[int](nil, map[string]int{}, intEqual).Empty())
	assert.True(t, mapsEqual(nil, map[string]int{}, intEqual))
}

func TestMergedCopiesOnWrite(t *testing.T) {
	base := map[string]int{"a": 1, "b": 2}

	out := merged(base, []string{"a"}, map[string]int{"b": 20, "c": 3})

	assert.Equal(t, map[string]int{"b": 20, "c": 3}, out)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, base)
	assert.Equal(t, map[string]int{"x": 1}, merged(nil, nil, map[string]int{"x": 1}))
}

func TestSortedValues(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, sortedValues(map[string]int{"c": 3, "a": 1, "b": 2}))
	assert.Empty(t, sortedValues(map[string]int{}))
}
