// Command dot generates the AVX2/FMA float32 dot-product kernel used by the
// blas package when it is built with the avx2kernels tag.
//
//	go generate ./blas/
package main

import (
	"github.com/ahmedtd/mlp/blas/asm-generators/genlib"
	. "github.com/mmcloughlin/avo/build"
)

func main() {
	Package("github.com/ahmedtd/mlp/blas")
	ConstraintExpr("amd64 && avx2kernels")

	TEXT("dotFloat32AVX2", NOSPLIT, "func(x []float32, y []float32) float32")
	Doc("dotFloat32AVX2 returns the dot product of x and y.  len(y) must equal len(x).")

	n := Load(Param("x").Len(), GP64())
	xPtr := Load(Param("x").Base(), GP64())
	yPtr := Load(Param("y").Base(), GP64())

	Comment("Accumulate x[i]*y[i] with four 8-lane accumulators")
	result := genlib.GenSIMDDot2(n, xPtr, yPtr, 4)
	Store(result, ReturnIndex(0))

	VZEROUPPER()
	RET()

	Generate()
}
