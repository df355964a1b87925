// Package genlib holds avo emitters shared by the kernel generators.
package genlib

import (
	. "github.com/mmcloughlin/avo/build"
	. "github.com/mmcloughlin/avo/operand"
	. "github.com/mmcloughlin/avo/reg"
)

// GenSIMDDot2 emits a dot product of the n float32 values at v0Ptr and v1Ptr.
// n, v0Ptr and v1Ptr are clobbered.  The sum is left in the low lane of the
// returned register.
func GenSIMDDot2(n Register, v0Ptr, v1Ptr Register, unroll int) Register {
	// Allocate accumulation registers.
	acc := make([]VecVirtual, unroll)
	for i := 0; i < unroll; i++ {
		acc[i] = YMM()
	}

	for i := 0; i < unroll; i++ {
		VXORPS(acc[i], acc[i], acc[i])
	}

	// Each block is unroll YMM registers of 8 lanes.
	blockitems := 8 * unroll
	blocksize := 4 * blockitems

	Label("dotblockloop")
	CMPQ(n, U32(blockitems))
	JL(LabelRef("dottail"))

	xs := make([]VecVirtual, unroll)
	for i := 0; i < unroll; i++ {
		xs[i] = YMM()
	}
	for i := 0; i < unroll; i++ {
		VMOVUPS(Mem{Base: v0Ptr}.Offset(32*i), xs[i])
	}
	for i := 0; i < unroll; i++ {
		VFMADD231PS(Mem{Base: v1Ptr}.Offset(32*i), xs[i], acc[i])
	}

	ADDQ(U32(blocksize), v0Ptr)
	ADDQ(U32(blocksize), v1Ptr)
	SUBQ(U32(blockitems), n)
	JMP(LabelRef("dotblockloop"))

	// Scalar tail.
	Label("dottail")
	tailAccumulator := XMM()
	VXORPS(tailAccumulator, tailAccumulator, tailAccumulator)

	Label("dottailloop")
	CMPQ(n, U32(0))
	JE(LabelRef("dotreduce"))

	tailElement := XMM()
	VMOVSS(Mem{Base: v0Ptr}, tailElement)
	VFMADD231SS(Mem{Base: v1Ptr}, tailElement, tailAccumulator)

	ADDQ(U32(4), v0Ptr)
	ADDQ(U32(4), v1Ptr)
	DECQ(n)
	JMP(LabelRef("dottailloop"))

	// Fold the accumulators, then the lanes, down to one value.
	Label("dotreduce")
	for i := 1; i < unroll; i++ {
		VADDPS(acc[0], acc[i], acc[0])
	}

	result := acc[0].AsX()
	top := XMM()
	VEXTRACTF128(U8(1), acc[0], top)
	VADDPS(result, top, result)
	VADDPS(result, tailAccumulator, result)
	VHADDPS(result, result, result)
	VHADDPS(result, result, result)

	return result
}
