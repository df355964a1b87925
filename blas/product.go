package blas

import (
	"fmt"

	"github.com/ahmedtd/mlp/internal/parallel"
)

// dot returns the sum of x[i]*y[i].  len(x) must equal len(y).  Plain float32
// slices go through the dispatched kernel.
func dot[T Element](x, y []T) T {
	if xf, ok := any(x).([]float32); ok {
		return T(dotFloat32(xf, any(y).([]float32)))
	}

	var sum T
	for i := range x {
		sum += x[i] * y[i]
	}
	return sum
}

// forRows runs f over [0, rows) in parallel, where each row costs about
// rowCost elements of work.  par.MinChunkSize counts elements, so it is
// converted to a minimum number of rows per chunk.
func forRows(rows, rowCost int, f func(i int)) {
	parallel.For(rows, f, rowConfig(rowCost))
}

func rowConfig(rowCost int) parallel.Config {
	cfg := par
	cfg.MinChunkSize = max(1, par.MinChunkSize/max(1, rowCost))
	return cfg
}

// InnerProduct returns the sum over i of a[i]*b[i], or ErrSizeMismatch if the
// lengths differ.  Chunks are reduced in parallel and combined in a fixed
// order.
func InnerProduct[T Element](a, b *Vector[T]) (T, error) {
	if a.size != b.size {
		var zero T
		return zero, fmt.Errorf("InnerProduct: sizes %d and %d: %w", a.size, b.size, ErrSizeMismatch)
	}
	x, y := a.data[:a.size], b.data[:b.size]
	return parallel.SumRange(len(x), func(start, end int) T {
		return dot(x[start:end], y[start:end])
	}, par), nil
}

// OuterProduct returns the a.Size() x b.Size() matrix with entry (i, j) equal
// to a[i]*b[j], backed by a's allocator.
func OuterProduct[T Element](a, b *Vector[T]) (*Matrix[T], error) {
	out, err := NewMatrixWith(a.allocator(), a.size, b.size)
	if err != nil {
		return nil, err
	}
	if err := OuterProductInto(out, a, b); err != nil {
		return nil, err
	}
	return out, nil
}

// OuterProductInto stores the outer product of a and b in dst, resizing dst
// to a.Size() x b.Size().
func OuterProductInto[T Element](dst *Matrix[T], a, b *Vector[T]) error {
	if err := dst.Resize(a.size, b.size); err != nil {
		return err
	}
	x, y := a.data[:a.size], b.data[:b.size]
	forRows(len(x), len(y), func(i int) {
		row := dst.Row(i)
		xi := x[i]
		for j := range row {
			row[j] = xi * y[j]
		}
	})
	return nil
}

// MulVec returns m * v, a vector of length m.Height(), backed by m's
// allocator.
func (m *Matrix[T]) MulVec(v *Vector[T]) (*Vector[T], error) {
	if m.width != v.size {
		return nil, fmt.Errorf("Matrix.MulVec: %dx%d times %d: %w", m.height, m.width, v.size, ErrShapeMismatch)
	}
	out, err := NewVectorWith(m.allocator(), m.height)
	if err != nil {
		return nil, err
	}
	if err := MulVecInto(out, m, v); err != nil {
		return nil, err
	}
	return out, nil
}

// MulVecInto stores m * v in dst, resizing dst to m.Height().  Rows are
// computed in parallel; each row is reduced sequentially.
func MulVecInto[T Element](dst *Vector[T], m *Matrix[T], v *Vector[T]) error {
	if m.width != v.size {
		return fmt.Errorf("MulVecInto: %dx%d times %d: %w", m.height, m.width, v.size, ErrShapeMismatch)
	}
	if dst == v {
		return fmt.Errorf("MulVecInto: %w", ErrAliased)
	}
	if err := dst.Resize(m.height); err != nil {
		return err
	}

	out, x := dst.data[:dst.size], v.data[:v.size]
	forRows(m.height, m.width, func(i int) {
		out[i] = dot(m.Row(i), x)
	})
	return nil
}

// MulMat returns a * b, backed by a's allocator.
func (m *Matrix[T]) MulMat(o *Matrix[T]) (*Matrix[T], error) {
	if m.width != o.height {
		return nil, fmt.Errorf("Matrix.MulMat: %dx%d times %dx%d: %w", m.height, m.width, o.height, o.width, ErrShapeMismatch)
	}
	out, err := NewMatrixWith(m.allocator(), m.height, o.width)
	if err != nil {
		return nil, err
	}
	if err := MulMatInto(out, m, o); err != nil {
		return nil, err
	}
	return out, nil
}

// MulMatInto stores a * b in dst, resizing dst to a.Height() x b.Width().
func MulMatInto[T Element](dst, a, b *Matrix[T]) error {
	if a.width != b.height {
		return fmt.Errorf("MulMatInto: %dx%d times %dx%d: %w", a.height, a.width, b.height, b.width, ErrShapeMismatch)
	}
	if dst == a || dst == b {
		return fmt.Errorf("MulMatInto: %w", ErrAliased)
	}
	if err := dst.Resize(a.height, b.width); err != nil {
		return err
	}

	// Equivalent to
	//
	// for i := 0; i < a.height; i++ {
	// 	for j := 0; j < b.width; j++ {
	// 		var sum T
	// 		for k := 0; k < a.width; k++ {
	// 			sum += a.Get(i, k) * b.Get(k, j)
	// 		}
	// 		dst.Set(i, j, sum)
	// 	}
	// }
	//
	// with the k loop hoisted outside j so both b and dst are walked
	// row-contiguously.
	forRows(a.height, a.width*b.width, func(i int) {
		out := dst.Row(i)
		clear(out)
		for k, aik := range a.Row(i) {
			bk := b.Row(k)
			for j := range out {
				out[j] += aik * bk[j]
			}
		}
	})
	return nil
}

// Transpose returns a new Width() x Height() matrix with entry (x, y) equal
// to m's entry (y, x).  m is not modified.
func (m *Matrix[T]) Transpose() (*Matrix[T], error) {
	out, err := NewMatrixWith(m.allocator(), m.width, m.height)
	if err != nil {
		return nil, err
	}
	if err := TransposeInto(out, m); err != nil {
		return nil, err
	}
	return out, nil
}

// TransposeInto stores the transpose of m in dst.
func TransposeInto[T Element](dst, m *Matrix[T]) error {
	if dst == m {
		return fmt.Errorf("TransposeInto: %w", ErrAliased)
	}
	if err := dst.Resize(m.width, m.height); err != nil {
		return err
	}
	forRows(m.height, m.width, func(y int) {
		for x, v := range m.Row(y) {
			dst.data[x*dst.width+y] = v
		}
	})
	return nil
}
