package blas

//go:generate go run ./asm-generators/dot -out dot_amd64.s -stubs dot_amd64.go

// dotFloat32 is the float32 dot-product kernel.  It starts out as the
// portable loop; builds with the avx2kernels tag swap in the generated AVX2
// kernel when the CPU supports it.
//
// dot_amd64.s and dot_amd64.go are not checked in.  Run go generate in this
// directory before building with -tags avx2kernels, or the build fails on the
// missing dotFloat32AVX2 stub.
var dotFloat32 = dotFloat32Generic

func dotFloat32Generic(x, y []float32) float32 {
	if len(x) != len(y) {
		panic("mismatched length")
	}

	// Four independent accumulators let the loop pipeline.
	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= len(x); i += 4 {
		s0 += x[i] * y[i]
		s1 += x[i+1] * y[i+1]
		s2 += x[i+2] * y[i+2]
		s3 += x[i+3] * y[i+3]
	}
	for ; i < len(x); i++ {
		s0 += x[i] * y[i]
	}
	return (s0 + s1) + (s2 + s3)
}
