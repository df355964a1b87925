package blas

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func denseDot2Naive(x []float32, y []float32) float32 {
	var sum float32
	for i := range len(x) {
		sum += x[i] * y[i]
	}
	return sum
}

func TestDotFloat32(t *testing.T) {
	r := rand.New(rand.NewSource(12345))

	for _, n := range []int{0, 1, 3, 4, 5, 31, 32, 33, 100, 1000} {
		x := make([]float32, n)
		y := make([]float32, n)
		for i := range n {
			x[i] = r.Float32()
			y[i] = r.Float32()
		}

		got := dotFloat32(x, y)
		want := denseDot2Naive(x, y)
		if diff := cmp.Diff(got, want, cmpopts.EquateApprox(1e-5, 1e-6)); diff != "" {
			t.Errorf("n=%d: Wrong output; diff (-got +want)\n%s", n, diff)
		}
	}
}

func TestDotFloat32MismatchedLengthPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("dotFloat32 did not panic on mismatched lengths")
		}
	}()
	dotFloat32([]float32{1, 2}, []float32{1})
}

func TestDotGenericPath(t *testing.T) {
	type celsius float32

	x := []celsius{1, 2, 3}
	y := []celsius{4, 5, 6}
	if got := dot(x, y); got != 32 {
		t.Errorf("dot() = %v, want 32", got)
	}
	if got := dot([]int{1, 2}, []int{3, 4}); got != 11 {
		t.Errorf("dot() = %v, want 11", got)
	}
}

func BenchmarkDenseDot2(b *testing.B) {
	b.Run("impl=naive", func(b *testing.B) {
		for i := 8; i < 16; i++ {
			b.Run("size="+strconv.Itoa(2<<i), func(b *testing.B) {
				x := make([]float32, 2<<i)
				y := make([]float32, 2<<i)
				for i := range 2 << i {
					x[i] = rand.Float32()
					y[i] = rand.Float32()
				}
				for b.Loop() {
					_ = denseDot2Naive(x, y)
				}
			})
		}
	})
	b.Run("impl=dispatch", func(b *testing.B) {
		for i := 8; i < 16; i++ {
			b.Run("size="+strconv.Itoa(2<<i), func(b *testing.B) {
				x := make([]float32, 2<<i)
				y := make([]float32, 2<<i)
				for i := range 2 << i {
					x[i] = rand.Float32()
					y[i] = rand.Float32()
				}
				for b.Loop() {
					_ = dotFloat32(x, y)
				}
			})
		}
	})
}
