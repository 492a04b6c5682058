// Package ring provides the fixed-capacity drop-oldest FIFO used for all
// rolling sample windows. It is not safe for concurrent use; shared instances
// are guarded at the accumulation boundary.
package ring

// Buffer is a bounded FIFO that evicts the oldest element on overflow.
// Insertion order is preserved and length never exceeds capacity.
type Buffer[T any] struct {
	items []T
	cap   int
}

// New creates a buffer with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		items: make([]T, 0, capacity),
		cap:   capacity,
	}
}

// Push appends v, evicting the oldest element if the buffer is full.
func (b *Buffer[T]) Push(v T) {
	if len(b.items) == b.cap {
		copy(b.items, b.items[1:])
		b.items[len(b.items)-1] = v
		return
	}
	b.items = append(b.items, v)
}

// PushAll appends each value in order.
func (b *Buffer[T]) PushAll(vs []T) {
	for _, v := range vs {
		b.Push(v)
	}
}

// Len returns the number of buffered elements.
func (b *Buffer[T]) Len() int {
	return len(b.items)
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return b.cap
}

// At returns the i-th element, oldest first.
func (b *Buffer[T]) At(i int) T {
	return b.items[i]
}

// Last returns the most recently pushed element and whether one exists.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if len(b.items) == 0 {
		return zero, false
	}
	return b.items[len(b.items)-1], true
}

// Items returns a copy of the buffered elements, oldest first.
func (b *Buffer[T]) Items() []T {
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Clear removes all elements without changing capacity.
func (b *Buffer[T]) Clear() {
	b.items = b.items[:0]
}
