// Package parallel provides the data-parallel loops used by the blas kernels.
package parallel

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Number is the set of element types Sum can reduce.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults sized to the physical core count.
func DefaultConfig() Config {
	n := cpuid.CPU.PhysicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4096,
	}
}

// Sequential is a configuration that never spawns goroutines.
var Sequential = Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}

// chunkSize returns the number of items per chunk, or 0 if the loop should
// run sequentially.
func (cfg Config) chunkSize(n int) int {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize || n < 2 {
		return 0
	}
	return max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
}

// ForRange calls f on contiguous sub-ranges [start, end) covering [0, n).  It
// returns once every call has returned.
func ForRange(n int, f func(start, end int), cfg Config) {
	if n <= 0 {
		return
	}

	chunk := cfg.chunkSize(n)
	if chunk == 0 || chunk >= n {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}

// For executes f(i) for i in [0, n).  Iterations must not depend on each
// other.
func For(n int, f func(i int), cfg Config) {
	ForRange(n, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	}, cfg)
}

// Sum returns the sum of f(i) for i in [0, n).
func Sum[T Number](n int, f func(i int) T, cfg Config) T {
	return SumRange(n, func(start, end int) T {
		var acc T
		for i := start; i < end; i++ {
			acc += f(i)
		}
		return acc
	}, cfg)
}

// SumRange returns the sum of f over contiguous sub-ranges covering [0, n).
//
// Each chunk produces its own partial sum, and the partials are combined in
// chunk order.  For a fixed n and Config the result is bit-for-bit
// reproducible; across configurations it differs only by floating-point
// reassociation.
func SumRange[T Number](n int, f func(start, end int) T, cfg Config) T {
	var total T
	if n <= 0 {
		return total
	}

	chunk := cfg.chunkSize(n)
	if chunk == 0 || chunk >= n {
		return f(0, n)
	}

	partials := make([]T, (n+chunk-1)/chunk)
	var wg sync.WaitGroup
	for c := range partials {
		start := c * chunk
		end := min(start+chunk, n)
		wg.Add(1)
		go func(c, s, e int) {
			defer wg.Done()
			partials[c] = f(s, e)
		}(c, start, end)
	}
	wg.Wait()

	for _, p := range partials {
		total += p
	}
	return total
}
