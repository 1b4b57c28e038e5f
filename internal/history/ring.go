// Package history provides the bounded, insertion-ordered buffers used for
// tracking quality snapshots and performance samples.
package history

// DefaultCapacity is the retention used by both the quality and the metrics history.
const DefaultCapacity = 100

// Ring is a fixed-capacity FIFO buffer. Appending to a full ring evicts the
// oldest element. Ring is not safe for concurrent use; owners guard it.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// NewRing returns an empty ring holding at most capacity elements.
// A non-positive capacity falls back to DefaultCapacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th element, oldest first. It panics when i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("history: index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Latest returns the most recently pushed element.
func (r *Ring[T]) Latest() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.At(r.size - 1), true
}

// Items returns a copy of all elements, oldest first.
func (r *Ring[T]) Items() []T {
	return r.Last(r.size)
}

// Last returns a copy of the newest n elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	offset := r.size - n
	for i := range n {
		out[i] = r.At(offset + i)
	}
	return out
}

// Filter returns a copy of the elements for which keep is true, oldest first.
func (r *Ring[T]) Filter(keep func(T) bool) []T {
	out := make([]T, 0, r.size)
	for i := range r.size {
		if v := r.At(i); keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// Clear removes every element.
func (r *Ring[T]) Clear() {
	clear(r.buf)
	r.start = 0
	r.size = 0
}
