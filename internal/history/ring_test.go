package history

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingEvictsOldestWhenFull(t *testing.T) {
	r := NewRing[int](DefaultCapacity)
	for i := 1; i <= 101; i++ {
		r.Push(i)
	}

	require.Equal(t, 100, r.Len())
	assert.Equal(t, 2, r.At(0), "oldest element must be evicted first")
	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, 101, latest)
}

func TestRingPreservesInsertionOrder(t *testing.T) {
	r := NewRing[string](3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		r.Push(s)
	}
	if diff := cmp.Diff([]string{"c", "d", "e"}, r.Items()); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestRingLast(t *testing.T) {
	r := NewRing[int](5)
	for i := range 4 {
		r.Push(i)
	}

	tests := []struct {
		name string
		n    int
		want []int
	}{
		{"fewer than stored", 2, []int{2, 3}},
		{"more than stored", 10, []int{0, 1, 2, 3}},
		{"zero", 0, []int{}},
		{"negative", -1, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, r.Last(tt.n)); diff != "" {
				t.Fatalf("Last(%d) mismatch (-want +got):\n%s", tt.n, diff)
			}
		})
	}
}

func TestRingFilterAndClear(t *testing.T) {
	r := NewRing[int](4)
	for i := range 6 {
		r.Push(i)
	}
	even := r.Filter(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, []int{2, 4}, even)

	r.Clear()
	assert.Equal(t, 0, r.Len())
	_, ok := r.Latest()
	assert.False(t, ok)
	r.Push(9)
	assert.Equal(t, []int{9}, r.Items())
}

func TestRingItemsAreCopies(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	items := r.Items()
	items[0] = 42
	assert.Equal(t, 1, r.At(0))
}

func TestNewRingDefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewRing[int](0).Cap())
}
