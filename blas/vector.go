package blas

import (
	"fmt"
	"strings"

	"github.com/ahmedtd/mlp/internal/parallel"
)

// par is the loop configuration shared by every kernel in the package.  It is
// computed once and never mutated.
var par = parallel.DefaultConfig()

// Vector is a growable, contiguous, owning buffer of elements.
//
// Elements [0, Size()) are meaningful; [Size(), Capacity()) are allocated
// but hold no defined value.  The zero Vector is empty and heap-backed.
type Vector[T Element] struct {
	data  []T // len(data) is the capacity.
	size  int
	alloc Allocator[T]
}

// NewVector returns a heap-backed vector of the given size.
func NewVector[T Element](size int) (*Vector[T], error) {
	return NewVectorWith[T](Heap[T]{}, size)
}

// NewVectorWith returns a vector of the given size whose storage comes from
// alloc.  Capacity equals size.
func NewVectorWith[T Element](alloc Allocator[T], size int) (*Vector[T], error) {
	data, err := alloc.Allocate(size)
	if err != nil {
		return nil, fmt.Errorf("while allocating vector: %w", err)
	}
	return &Vector[T]{data: data, size: size, alloc: alloc}, nil
}

// VectorOf returns a heap-backed vector holding a copy of values.
func VectorOf[T Element](values ...T) *Vector[T] {
	data := make([]T, len(values))
	copy(data, values)
	if len(data) == 0 {
		data = nil
	}
	return &Vector[T]{data: data, size: len(values), alloc: Heap[T]{}}
}

// ConvertVector builds a heap-backed vector from src, mapping every element
// through f.
func ConvertVector[S, T Element](src *Vector[S], f func(S) T) (*Vector[T], error) {
	dst, err := NewVector[T](src.size)
	if err != nil {
		return nil, err
	}
	s, d := src.data[:src.size], dst.data[:dst.size]
	parallel.ForRange(len(d), func(start, end int) {
		for i := start; i < end; i++ {
			d[i] = f(s[i])
		}
	}, par)
	return dst, nil
}

func (v *Vector[T]) allocator() Allocator[T] {
	if v.alloc == nil {
		v.alloc = Heap[T]{}
	}
	return v.alloc
}

// Size returns the logical length.
func (v *Vector[T]) Size() int {
	return v.size
}

// Capacity returns the number of allocated elements.
func (v *Vector[T]) Capacity() int {
	return len(v.data)
}

// Data returns the live elements.  The slice aliases the vector's storage and
// is invalidated by any call that reallocates.
func (v *Vector[T]) Data() []T {
	return v.data[:v.size]
}

// Get returns element i without checking it against Size.
func (v *Vector[T]) Get(i int) T {
	return v.data[i]
}

// Set stores element i without checking it against Size.
func (v *Vector[T]) Set(i int, value T) {
	v.data[i] = value
}

// At returns element i, or ErrOutOfRange if i is not in [0, Size()).
func (v *Vector[T]) At(i int) (T, error) {
	if i < 0 || i >= v.size {
		var zero T
		return zero, fmt.Errorf("Vector.At(%d) with size %d: %w", i, v.size, ErrOutOfRange)
	}
	return v.data[i], nil
}

// SetAt stores element i, or returns ErrOutOfRange if i is not in [0, Size()).
func (v *Vector[T]) SetAt(i int, value T) error {
	if i < 0 || i >= v.size {
		return fmt.Errorf("Vector.SetAt(%d) with size %d: %w", i, v.size, ErrOutOfRange)
	}
	v.data[i] = value
	return nil
}

// Push appends value, doubling the capacity (0 becomes 1) when full.  Live
// elements are preserved across the reallocation.
func (v *Vector[T]) Push(value T) error {
	if v.size == len(v.data) {
		newCap := 1
		if len(v.data) > 0 {
			newCap = 2 * len(v.data)
		}

		alloc := v.allocator()
		grown, err := alloc.Allocate(newCap)
		if err != nil {
			return fmt.Errorf("while growing vector to %d: %w", newCap, err)
		}
		copy(grown, v.data[:v.size])
		alloc.Deallocate(v.data)
		v.data = grown
	}

	v.data[v.size] = value
	v.size++
	return nil
}

// Pop removes and returns the last element.
func (v *Vector[T]) Pop() (T, error) {
	if v.size == 0 {
		var zero T
		return zero, fmt.Errorf("Vector.Pop: %w", ErrEmpty)
	}
	v.size--
	return v.data[v.size], nil
}

// Resize sets the logical length to n.  If n fits in the current capacity
// only the length changes.  Otherwise the buffer is replaced by one of exactly
// n elements and the previous content is dropped.
func (v *Vector[T]) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("Vector.Resize(%d): %w", n, ErrOutOfRange)
	}
	if n <= len(v.data) {
		v.size = n
		return nil
	}
	if err := v.reallocate(n); err != nil {
		return err
	}
	v.size = n
	return nil
}

// Reserve grows the capacity to at least n.  Like Resize, growing drops the
// previous content; the logical length is left unchanged.
func (v *Vector[T]) Reserve(n int) error {
	if n <= len(v.data) {
		return nil
	}
	size := v.size
	if err := v.reallocate(n); err != nil {
		return err
	}
	v.size = size
	return nil
}

func (v *Vector[T]) reallocate(n int) error {
	alloc := v.allocator()
	data, err := alloc.Allocate(n)
	if err != nil {
		return fmt.Errorf("while reallocating vector to %d: %w", n, err)
	}
	alloc.Deallocate(v.data)
	v.data = data
	return nil
}

// Release returns the buffer to the allocator and leaves the vector empty.
// Releasing an empty vector is a no-op.
func (v *Vector[T]) Release() {
	if v.data != nil {
		v.allocator().Deallocate(v.data)
	}
	v.data = nil
	v.size = 0
}

// Clone returns a deep copy of the live elements, backed by the same
// allocator.  The copy's capacity equals its size.
func (v *Vector[T]) Clone() (*Vector[T], error) {
	out, err := NewVectorWith(v.allocator(), v.size)
	if err != nil {
		return nil, err
	}
	copy(out.data, v.data[:v.size])
	return out, nil
}

// CopyFrom makes v a deep copy of src, resizing v first.
func (v *Vector[T]) CopyFrom(src *Vector[T]) error {
	if v == src {
		return nil
	}
	if err := v.Resize(src.size); err != nil {
		return err
	}
	copy(v.data[:v.size], src.data[:src.size])
	return nil
}

// Move transfers ownership of v's buffer to a new Vector and leaves v empty.
func (v *Vector[T]) Move() *Vector[T] {
	out := &Vector[T]{data: v.data, size: v.size, alloc: v.allocator()}
	v.data = nil
	v.size = 0
	return out
}

// MoveFrom releases v's buffer and takes ownership of src's, leaving src
// empty.
func (v *Vector[T]) MoveFrom(src *Vector[T]) {
	if v == src {
		return
	}
	v.Release()
	v.data, v.size, v.alloc = src.data, src.size, src.allocator()
	src.data = nil
	src.size = 0
}

// Fill sets every live element to value.
func (v *Vector[T]) Fill(value T) {
	d := v.data[:v.size]
	parallel.ForRange(len(d), func(start, end int) {
		for i := start; i < end; i++ {
			d[i] = value
		}
	}, par)
}

// Apply replaces every live element x with f(x).
func (v *Vector[T]) Apply(f func(T) T) {
	d := v.data[:v.size]
	parallel.ForRange(len(d), func(start, end int) {
		for i := start; i < end; i++ {
			d[i] = f(d[i])
		}
	}, par)
}

// zipInPlace sets v[i] = f(v[i], o[i]).  Nothing is written unless the sizes
// agree.
func (v *Vector[T]) zipInPlace(op string, o *Vector[T], f func(a, b T) T) error {
	if v.size != o.size {
		return fmt.Errorf("Vector.%s: sizes %d and %d: %w", op, v.size, o.size, ErrSizeMismatch)
	}
	a, b := v.data[:v.size], o.data[:o.size]
	parallel.ForRange(len(a), func(start, end int) {
		for i := start; i < end; i++ {
			a[i] = f(a[i], b[i])
		}
	}, par)
	return nil
}

// zip returns a new vector holding f(v[i], o[i]).
func (v *Vector[T]) zip(op string, o *Vector[T], f func(a, b T) T) (*Vector[T], error) {
	if v.size != o.size {
		return nil, fmt.Errorf("Vector.%s: sizes %d and %d: %w", op, v.size, o.size, ErrSizeMismatch)
	}
	out, err := v.Clone()
	if err != nil {
		return nil, err
	}
	if err := out.zipInPlace(op, o, f); err != nil {
		return nil, err
	}
	return out, nil
}

func add[T Element](a, b T) T { return a + b }
func sub[T Element](a, b T) T { return a - b }
func mul[T Element](a, b T) T { return a * b }
func div[T Element](a, b T) T { return a / b }

// AddInPlace sets v[i] += o[i].
func (v *Vector[T]) AddInPlace(o *Vector[T]) error { return v.zipInPlace("AddInPlace", o, add[T]) }

// SubInPlace sets v[i] -= o[i].
func (v *Vector[T]) SubInPlace(o *Vector[T]) error { return v.zipInPlace("SubInPlace", o, sub[T]) }

// MulInPlace sets v[i] *= o[i].
func (v *Vector[T]) MulInPlace(o *Vector[T]) error { return v.zipInPlace("MulInPlace", o, mul[T]) }

// DivInPlace sets v[i] /= o[i].
func (v *Vector[T]) DivInPlace(o *Vector[T]) error { return v.zipInPlace("DivInPlace", o, div[T]) }

// Add returns v + o elementwise.
func (v *Vector[T]) Add(o *Vector[T]) (*Vector[T], error) { return v.zip("Add", o, add[T]) }

// Sub returns v - o elementwise.
func (v *Vector[T]) Sub(o *Vector[T]) (*Vector[T], error) { return v.zip("Sub", o, sub[T]) }

// Mul returns v * o elementwise.
func (v *Vector[T]) Mul(o *Vector[T]) (*Vector[T], error) { return v.zip("Mul", o, mul[T]) }

// Div returns v / o elementwise.
func (v *Vector[T]) Div(o *Vector[T]) (*Vector[T], error) { return v.zip("Div", o, div[T]) }

func (v *Vector[T]) scalarInPlace(s T, f func(a, b T) T) {
	v.Apply(func(x T) T { return f(x, s) })
}

func (v *Vector[T]) scalar(s T, f func(a, b T) T) (*Vector[T], error) {
	out, err := v.Clone()
	if err != nil {
		return nil, err
	}
	out.scalarInPlace(s, f)
	return out, nil
}

func (v *Vector[T]) AddScalarInPlace(s T) { v.scalarInPlace(s, add[T]) }
func (v *Vector[T]) SubScalarInPlace(s T) { v.scalarInPlace(s, sub[T]) }
func (v *Vector[T]) MulScalarInPlace(s T) { v.scalarInPlace(s, mul[T]) }
func (v *Vector[T]) DivScalarInPlace(s T) { v.scalarInPlace(s, div[T]) }

func (v *Vector[T]) AddScalar(s T) (*Vector[T], error) { return v.scalar(s, add[T]) }
func (v *Vector[T]) SubScalar(s T) (*Vector[T], error) { return v.scalar(s, sub[T]) }
func (v *Vector[T]) MulScalar(s T) (*Vector[T], error) { return v.scalar(s, mul[T]) }
func (v *Vector[T]) DivScalar(s T) (*Vector[T], error) { return v.scalar(s, div[T]) }

// Neg returns -v.
func (v *Vector[T]) Neg() (*Vector[T], error) {
	out, err := v.Clone()
	if err != nil {
		return nil, err
	}
	out.Apply(func(x T) T { return -x })
	return out, nil
}

// Sum returns the sum of the live elements.
func (v *Vector[T]) Sum() T {
	d := v.data[:v.size]
	return parallel.Sum(len(d), func(i int) T { return d[i] }, par)
}

// ArgMax returns the index of the first maximal element.
func (v *Vector[T]) ArgMax() (int, error) {
	if v.size == 0 {
		return 0, fmt.Errorf("Vector.ArgMax: %w", ErrEmpty)
	}
	best := 0
	for i := 1; i < v.size; i++ {
		if v.data[i] > v.data[best] {
			best = i
		}
	}
	return best, nil
}

// Max returns the largest element.
func (v *Vector[T]) Max() (T, error) {
	i, err := v.ArgMax()
	if err != nil {
		var zero T
		return zero, err
	}
	return v.data[i], nil
}

// Equal reports whether v and o have the same length and exactly equal
// elements.
func (v *Vector[T]) Equal(o *Vector[T]) bool {
	if v.size != o.size {
		return false
	}
	for i := 0; i < v.size; i++ {
		if v.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

func (v *Vector[T]) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < v.size; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprint(&sb, v.data[i])
	}
	sb.WriteString("]")
	return sb.String()
}
