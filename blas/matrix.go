package blas

import (
	"fmt"
	"math"
	"strings"

	"github.com/ahmedtd/mlp/internal/parallel"
)

// Matrix is a contiguous, owning, row-major 2-D buffer.  Row r occupies
// elements [r*width, r*width+width).  The zero Matrix is 0x0 and
// heap-backed.
type Matrix[T Element] struct {
	data   []T // len(data) == height*width
	height int
	width  int
	alloc  Allocator[T]
}

// NewMatrix returns a heap-backed height x width matrix.
func NewMatrix[T Element](height, width int) (*Matrix[T], error) {
	return NewMatrixWith[T](Heap[T]{}, height, width)
}

// NewMatrixWith returns a height x width matrix whose storage comes from
// alloc.
func NewMatrixWith[T Element](alloc Allocator[T], height, width int) (*Matrix[T], error) {
	if height < 0 || width < 0 {
		return nil, fmt.Errorf("NewMatrix(%d, %d): %w", height, width, ErrShapeMismatch)
	}
	n, err := elementCount(height, width)
	if err != nil {
		return nil, err
	}
	data, err := alloc.Allocate(n)
	if err != nil {
		return nil, fmt.Errorf("while allocating %dx%d matrix: %w", height, width, err)
	}
	return &Matrix[T]{data: data, height: height, width: width, alloc: alloc}, nil
}

// elementCount returns height*width for non-negative dimensions, or
// ErrAllocation if the product does not fit in an int.
func elementCount(height, width int) (int, error) {
	if width != 0 && height > math.MaxInt/width {
		return 0, fmt.Errorf("%dx%d matrix: element count overflows: %w", height, width, ErrAllocation)
	}
	return height * width, nil
}

// MatrixOf returns a heap-backed matrix holding a copy of values in
// row-major order.
func MatrixOf[T Element](height, width int, values ...T) (*Matrix[T], error) {
	if n, err := elementCount(height, width); err != nil || len(values) != n {
		return nil, fmt.Errorf("MatrixOf(%d, %d) with %d values: %w", height, width, len(values), ErrShapeMismatch)
	}
	m, err := NewMatrix[T](height, width)
	if err != nil {
		return nil, err
	}
	copy(m.data, values)
	return m, nil
}

// Identity returns the n x n identity matrix.
func Identity[T Element](n int) (*Matrix[T], error) {
	m, err := NewMatrix[T](n, n)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m, nil
}

// ConvertMatrix builds a heap-backed matrix from src, mapping every element
// through f.
func ConvertMatrix[S, T Element](src *Matrix[S], f func(S) T) (*Matrix[T], error) {
	dst, err := NewMatrix[T](src.height, src.width)
	if err != nil {
		return nil, err
	}
	s, d := src.data, dst.data
	parallel.ForRange(len(d), func(start, end int) {
		for i := start; i < end; i++ {
			d[i] = f(s[i])
		}
	}, par)
	return dst, nil
}

func (m *Matrix[T]) allocator() Allocator[T] {
	if m.alloc == nil {
		m.alloc = Heap[T]{}
	}
	return m.alloc
}

func (m *Matrix[T]) Height() int { return m.height }
func (m *Matrix[T]) Width() int  { return m.width }

// Size returns height*width.
func (m *Matrix[T]) Size() int { return len(m.data) }

// Data returns the row-major storage.  The slice aliases the matrix.
func (m *Matrix[T]) Data() []T { return m.data }

// Row returns row i as a slice aliasing the matrix.  The caller must ensure
// i < Height().
func (m *Matrix[T]) Row(i int) []T {
	return m.data[i*m.width : i*m.width+m.width : i*m.width+m.width]
}

// Get returns element (i, j) without range checks beyond the slice bounds.
func (m *Matrix[T]) Get(i, j int) T {
	return m.data[i*m.width+j]
}

// Set stores element (i, j) without range checks beyond the slice bounds.
func (m *Matrix[T]) Set(i, j int, value T) {
	m.data[i*m.width+j] = value
}

func (m *Matrix[T]) inRange(i, j int) bool {
	return i >= 0 && i < m.height && j >= 0 && j < m.width
}

// At returns element (i, j), or ErrOutOfRange.
func (m *Matrix[T]) At(i, j int) (T, error) {
	if !m.inRange(i, j) {
		var zero T
		return zero, fmt.Errorf("Matrix.At(%d, %d) on %dx%d: %w", i, j, m.height, m.width, ErrOutOfRange)
	}
	return m.data[i*m.width+j], nil
}

// SetAt stores element (i, j), or returns ErrOutOfRange.
func (m *Matrix[T]) SetAt(i, j int, value T) error {
	if !m.inRange(i, j) {
		return fmt.Errorf("Matrix.SetAt(%d, %d) on %dx%d: %w", i, j, m.height, m.width, ErrOutOfRange)
	}
	m.data[i*m.width+j] = value
	return nil
}

// Resize changes the shape.  The buffer is only replaced when the shape
// actually changes, and the content is never preserved or remapped: treat a
// resized matrix as freshly constructed.
func (m *Matrix[T]) Resize(height, width int) error {
	if height == m.height && width == m.width {
		return nil
	}
	if height < 0 || width < 0 {
		return fmt.Errorf("Matrix.Resize(%d, %d): %w", height, width, ErrShapeMismatch)
	}
	n, err := elementCount(height, width)
	if err != nil {
		return err
	}
	alloc := m.allocator()
	data, err := alloc.Allocate(n)
	if err != nil {
		return fmt.Errorf("while reallocating matrix to %dx%d: %w", height, width, err)
	}
	alloc.Deallocate(m.data)
	m.data, m.height, m.width = data, height, width
	return nil
}

// Release returns the buffer to the allocator and leaves the matrix 0x0.
func (m *Matrix[T]) Release() {
	if m.data != nil {
		m.allocator().Deallocate(m.data)
	}
	m.data, m.height, m.width = nil, 0, 0
}

// Clone returns a deep copy backed by the same allocator.
func (m *Matrix[T]) Clone() (*Matrix[T], error) {
	out, err := NewMatrixWith(m.allocator(), m.height, m.width)
	if err != nil {
		return nil, err
	}
	copy(out.data, m.data)
	return out, nil
}

// CopyFrom makes m a deep copy of src.
func (m *Matrix[T]) CopyFrom(src *Matrix[T]) error {
	if m == src {
		return nil
	}
	if err := m.Resize(src.height, src.width); err != nil {
		return err
	}
	copy(m.data, src.data)
	return nil
}

// Move transfers ownership of m's buffer to a new Matrix and leaves m 0x0.
func (m *Matrix[T]) Move() *Matrix[T] {
	out := &Matrix[T]{data: m.data, height: m.height, width: m.width, alloc: m.allocator()}
	m.data, m.height, m.width = nil, 0, 0
	return out
}

// MoveFrom releases m's buffer and takes ownership of src's, leaving src
// 0x0.
func (m *Matrix[T]) MoveFrom(src *Matrix[T]) {
	if m == src {
		return
	}
	m.Release()
	m.data, m.height, m.width, m.alloc = src.data, src.height, src.width, src.allocator()
	src.data, src.height, src.width = nil, 0, 0
}

// Fill sets every element to value.
func (m *Matrix[T]) Fill(value T) {
	d := m.data
	parallel.ForRange(len(d), func(start, end int) {
		for i := start; i < end; i++ {
			d[i] = value
		}
	}, par)
}

// Apply replaces every element x with f(x).
func (m *Matrix[T]) Apply(f func(T) T) {
	d := m.data
	parallel.ForRange(len(d), func(start, end int) {
		for i := start; i < end; i++ {
			d[i] = f(d[i])
		}
	}, par)
}

func (m *Matrix[T]) sameShape(o *Matrix[T]) bool {
	return m.height == o.height && m.width == o.width
}

func (m *Matrix[T]) zipInPlace(op string, o *Matrix[T], f func(a, b T) T) error {
	if !m.sameShape(o) {
		return fmt.Errorf("Matrix.%s: %dx%d and %dx%d: %w", op, m.height, m.width, o.height, o.width, ErrShapeMismatch)
	}
	a, b := m.data, o.data
	parallel.ForRange(len(a), func(start, end int) {
		for i := start; i < end; i++ {
			a[i] = f(a[i], b[i])
		}
	}, par)
	return nil
}

func (m *Matrix[T]) zip(op string, o *Matrix[T], f func(a, b T) T) (*Matrix[T], error) {
	if !m.sameShape(o) {
		return nil, fmt.Errorf("Matrix.%s: %dx%d and %dx%d: %w", op, m.height, m.width, o.height, o.width, ErrShapeMismatch)
	}
	out, err := m.Clone()
	if err != nil {
		return nil, err
	}
	if err := out.zipInPlace(op, o, f); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Matrix[T]) AddInPlace(o *Matrix[T]) error     { return m.zipInPlace("AddInPlace", o, add[T]) }
func (m *Matrix[T]) SubInPlace(o *Matrix[T]) error     { return m.zipInPlace("SubInPlace", o, sub[T]) }
func (m *Matrix[T]) MulElemInPlace(o *Matrix[T]) error { return m.zipInPlace("MulElemInPlace", o, mul[T]) }
func (m *Matrix[T]) DivElemInPlace(o *Matrix[T]) error { return m.zipInPlace("DivElemInPlace", o, div[T]) }

func (m *Matrix[T]) Add(o *Matrix[T]) (*Matrix[T], error)     { return m.zip("Add", o, add[T]) }
func (m *Matrix[T]) Sub(o *Matrix[T]) (*Matrix[T], error)     { return m.zip("Sub", o, sub[T]) }
func (m *Matrix[T]) MulElem(o *Matrix[T]) (*Matrix[T], error) { return m.zip("MulElem", o, mul[T]) }
func (m *Matrix[T]) DivElem(o *Matrix[T]) (*Matrix[T], error) { return m.zip("DivElem", o, div[T]) }

func (m *Matrix[T]) scalar(s T, f func(a, b T) T) (*Matrix[T], error) {
	out, err := m.Clone()
	if err != nil {
		return nil, err
	}
	out.Apply(func(x T) T { return f(x, s) })
	return out, nil
}

func (m *Matrix[T]) AddScalarInPlace(s T) { m.Apply(func(x T) T { return x + s }) }
func (m *Matrix[T]) SubScalarInPlace(s T) { m.Apply(func(x T) T { return x - s }) }
func (m *Matrix[T]) MulScalarInPlace(s T) { m.Apply(func(x T) T { return x * s }) }
func (m *Matrix[T]) DivScalarInPlace(s T) { m.Apply(func(x T) T { return x / s }) }

func (m *Matrix[T]) AddScalar(s T) (*Matrix[T], error) { return m.scalar(s, add[T]) }
func (m *Matrix[T]) SubScalar(s T) (*Matrix[T], error) { return m.scalar(s, sub[T]) }
func (m *Matrix[T]) MulScalar(s T) (*Matrix[T], error) { return m.scalar(s, mul[T]) }
func (m *Matrix[T]) DivScalar(s T) (*Matrix[T], error) { return m.scalar(s, div[T]) }

// Equal reports whether m and o have the same shape and exactly equal
// elements.
func (m *Matrix[T]) Equal(o *Matrix[T]) bool {
	if !m.sameShape(o) {
		return false
	}
	for i := range m.data {
		if m.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

func (m *Matrix[T]) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < m.height; i++ {
		if i > 0 {
			sb.WriteString(",\n ")
		}
		sb.WriteString("[")
		for j, x := range m.Row(i) {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprint(&sb, x)
		}
		sb.WriteString("]")
	}
	sb.WriteString("]")
	return sb.String()
}
