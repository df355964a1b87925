package blas

import (
	"errors"
	"math"
	"testing"
)

func TestHeapAllocate(t *testing.T) {
	var h Heap[float32]

	buf, err := h.Allocate(0)
	if err != nil || buf != nil {
		t.Errorf("Allocate(0) = %v, %v; want nil, nil", buf, err)
	}

	buf, err = h.Allocate(5)
	if err != nil {
		t.Fatalf("Allocate(5): %v", err)
	}
	if len(buf) != 5 {
		t.Errorf("len = %d, want 5", len(buf))
	}
	h.Deallocate(buf)
	h.Deallocate(nil)

	if _, err := h.Allocate(-1); !errors.Is(err, ErrAllocation) {
		t.Errorf("Allocate(-1): got %v, want ErrAllocation", err)
	}
	if _, err := h.Allocate(math.MaxInt); !errors.Is(err, ErrAllocation) {
		t.Errorf("Allocate(MaxInt): got %v, want ErrAllocation", err)
	}
}

func TestNewVectorAllocationFailure(t *testing.T) {
	if _, err := NewVector[float64](-3); !errors.Is(err, ErrAllocation) {
		t.Errorf("got %v, want ErrAllocation", err)
	}
}

func TestArena(t *testing.T) {
	a := NewArena[float32](10)

	x, err := NewVectorWith[float32](a, 4)
	if err != nil {
		t.Fatalf("NewVectorWith: %v", err)
	}
	y, err := NewMatrixWith[float32](a, 2, 3)
	if err != nil {
		t.Fatalf("NewMatrixWith: %v", err)
	}
	if a.Used() != 10 {
		t.Errorf("Used() = %d, want 10", a.Used())
	}

	// Buffers do not overlap.
	x.Fill(1)
	y.Fill(2)
	for i, v := range x.Data() {
		if v != 1 {
			t.Errorf("x[%d] = %v, overwritten by a later allocation", i, v)
		}
	}

	if _, err := NewVectorWith[float32](a, 1); !errors.Is(err, ErrAllocation) {
		t.Errorf("exhausted arena: got %v, want ErrAllocation", err)
	}

	// Releasing arena-backed containers does not give space back.
	x.Release()
	y.Release()
	if a.Used() != 10 {
		t.Errorf("Used() after Release = %d, want 10", a.Used())
	}

	a.Reset()
	z, err := NewVectorWith[float32](a, 10)
	if err != nil {
		t.Fatalf("NewVectorWith after Reset: %v", err)
	}
	for i, v := range z.Data() {
		if v != 0 {
			t.Errorf("z[%d] = %v, want zeroed storage", i, v)
		}
	}
}

func TestArenaHugeAllocation(t *testing.T) {
	a := NewArena[float32](10)

	if _, err := a.Allocate(math.MaxInt); !errors.Is(err, ErrAllocation) {
		t.Errorf("Allocate(MaxInt): got %v, want ErrAllocation", err)
	}
	if _, err := a.Allocate(4); err != nil {
		t.Fatalf("Allocate(4): %v", err)
	}
	if _, err := a.Allocate(math.MaxInt - 2); !errors.Is(err, ErrAllocation) {
		t.Errorf("Allocate(MaxInt-2) with 4 in use: got %v, want ErrAllocation", err)
	}
	if a.Used() != 4 {
		t.Errorf("Used() = %d after failed allocations, want 4", a.Used())
	}
}

func TestArenaGrowingVectorReleasesThroughArena(t *testing.T) {
	a := NewArena[int](7)

	v, err := NewVectorWith[int](a, 0)
	if err != nil {
		t.Fatalf("NewVectorWith: %v", err)
	}
	// Capacities 1, 2, 4 consume 7 slots; the next doubling does not fit.
	for i := 0; i < 4; i++ {
		if err := v.Push(i); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	if err := v.Push(4); !errors.Is(err, ErrAllocation) {
		t.Errorf("Push beyond arena: got %v, want ErrAllocation", err)
	}
	if v.Size() != 4 {
		t.Errorf("failed Push changed size to %d", v.Size())
	}
}
