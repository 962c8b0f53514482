// Package ring provides a bounded FIFO buffer. When full, appending evicts
// the oldest entry. The zero value is not usable; construct with New.
//
// Buffer is not safe for concurrent use; callers hold their own lock.
package ring

// Buffer is a fixed-capacity FIFO over elements of type T.
type Buffer[T any] struct {
	items []T
	cap   int
}

// New returns an empty buffer with the given capacity. Panics if cap < 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{cap: capacity}
}

// Append adds item at the tail. If the buffer is full the oldest entry is
// evicted and returned with evicted=true.
func (b *Buffer[T]) Append(item T) (oldest T, evicted bool) {
	if len(b.items) == b.cap {
		oldest = b.items[0]
		copy(b.items, b.items[1:])
		b.items[len(b.items)-1] = item
		return oldest, true
	}
	b.items = append(b.items, item)
	return oldest, false
}

// Items returns a copy of the buffer contents, oldest first.
func (b *Buffer[T]) Items() []T {
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer[T]) Len() int {
	return len(b.items)
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return b.cap
}
