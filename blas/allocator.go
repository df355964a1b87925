// Package blas implements the dense containers the neural package is built
// on: a growable Vector and a row-major Matrix over a numeric element type,
// both drawing their storage from an injectable Allocator.
package blas

import (
	"errors"
	"fmt"
)

// Element is the set of types Vector and Matrix can hold.
type Element interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

var (
	ErrSizeMismatch  = errors.New("blas: size mismatch")
	ErrShapeMismatch = errors.New("blas: shape mismatch")
	ErrOutOfRange    = errors.New("blas: index out of range")
	ErrEmpty         = errors.New("blas: empty vector")
	ErrAllocation    = errors.New("blas: allocation failed")
	ErrAliased       = errors.New("blas: destination aliases an operand")
)

// Allocator hands out raw element buffers to containers.
//
// A buffer returned by Allocate must be given back to the Deallocate of the
// same Allocator.  Allocate(0) returns a nil buffer, and Deallocate(nil) is a
// no-op.
type Allocator[T Element] interface {
	Allocate(n int) ([]T, error)
	Deallocate(buf []T)
}

// Heap is the general-purpose strategy.  Its buffers are valid for any
// lifetime.
type Heap[T Element] struct{}

var _ Allocator[float32] = Heap[float32]{}

func (Heap[T]) Allocate(n int) (buf []T, err error) {
	if n < 0 {
		return nil, fmt.Errorf("allocate %d elements: %w", n, ErrAllocation)
	}
	if n == 0 {
		return nil, nil
	}

	// make panics with "len out of range" rather than returning an error.
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("allocate %d elements: %v: %w", n, r, ErrAllocation)
		}
	}()
	return make([]T, n), nil
}

// Deallocate drops the buffer; the garbage collector reclaims it once no
// other reference remains.
func (Heap[T]) Deallocate([]T) {}

// Arena is the transient strategy: a bump allocator over one fixed slab.
//
// Buffers are only valid until the next Reset, so they must never be stored
// past the scope that owns the arena.  Deallocate is a no-op; everything is
// reclaimed at once by Reset.
type Arena[T Element] struct {
	slab []T
	used int
}

var _ Allocator[float32] = (*Arena[float32])(nil)

// NewArena returns an arena that can hand out capacity elements between
// resets.
func NewArena[T Element](capacity int) *Arena[T] {
	return &Arena[T]{slab: make([]T, capacity)}
}

func (a *Arena[T]) Allocate(n int) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("arena: allocate %d elements: %w", n, ErrAllocation)
	}
	if n == 0 {
		return nil, nil
	}
	if n > len(a.slab)-a.used {
		return nil, fmt.Errorf("arena: allocate %d elements with %d of %d in use: %w", n, a.used, len(a.slab), ErrAllocation)
	}

	buf := a.slab[a.used : a.used+n : a.used+n]
	clear(buf)
	a.used += n
	return buf, nil
}

func (a *Arena[T]) Deallocate([]T) {}

// Reset reclaims every buffer handed out since the previous Reset.
func (a *Arena[T]) Reset() {
	a.used = 0
}

// Cap returns the slab size.
func (a *Arena[T]) Cap() int {
	return len(a.slab)
}

// Used returns the number of elements currently handed out.
func (a *Arena[T]) Used() int {
	return a.used
}
