//go:build amd64 && avx2kernels

// Requires the output of go generate; see dotFloat32.

package blas

import "github.com/klauspost/cpuid/v2"

func init() {
	if cpuid.CPU.Supports(cpuid.AVX, cpuid.AVX2, cpuid.FMA3) {
		dotFloat32 = dotFloat32Dispatch
	}
}

func dotFloat32Dispatch(x, y []float32) float32 {
	if len(x) != len(y) {
		panic("mismatched length")
	}
	return dotFloat32AVX2(x, y)
}
