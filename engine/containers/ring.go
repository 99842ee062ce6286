package containers

import "errors"

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrQueueEmpty = errors.New("queue is empty")
)

// Ring is a fixed-size circular buffer.
type Ring[T any] struct {
	data       []T
	size       int
	readIndex  int
	writeIndex int
	count      int
}

func NewRing[T any](size int) *Ring[T] {
	return &Ring[T]{
		data: make([]T, size),
		size: size,
	}
}

// Enqueue adds an element to the queue
func (r *Ring[T]) Enqueue(value T) error {
	if r.IsFull() {
		return ErrQueueFull
	}
	r.data[r.writeIndex] = value
	r.writeIndex = (r.writeIndex + 1) % r.size
	r.count++
	return nil
}

// Push adds an element, overwriting the oldest one when full.
func (r *Ring[T]) Push(value T) {
	if r.IsFull() {
		r.readIndex = (r.readIndex + 1) % r.size
		r.count--
	}
	_ = r.Enqueue(value)
}

// Dequeue removes and returns the front element in the queue
func (r *Ring[T]) Dequeue() (T, error) {
	var zero T
	if r.IsEmpty() {
		return zero, ErrQueueEmpty
	}
	value := r.data[r.readIndex]
	r.data[r.readIndex] = zero
	r.readIndex = (r.readIndex + 1) % r.size
	r.count--
	return value, nil
}

// Peek returns the front element without removing it
func (r *Ring[T]) Peek() (T, error) {
	if r.IsEmpty() {
		var zero T
		return zero, ErrQueueEmpty
	}
	return r.data[r.readIndex], nil
}

// Each visits elements from oldest to newest.
func (r *Ring[T]) Each(fn func(T)) {
	for i := 0; i < r.count; i++ {
		fn(r.data[(r.readIndex+i)%r.size])
	}
}

func (r *Ring[T]) Len() int {
	return r.count
}

func (r *Ring[T]) IsEmpty() bool {
	return r.count == 0
}

func (r *Ring[T]) IsFull() bool {
	return r.count == r.size
}
