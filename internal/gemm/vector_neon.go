//go:build arm64 && !noasm

package gemm

import (
	"github.com/ajroetker/go-highway/hwy/asm"
	syscpu "golang.org/x/sys/cpu"
)

func init() {
	cpu.HasFMA = syscpu.ARM64.HasASIMD && !noSIMD()
}

// dot4SIMD accumulates into one 128-bit NEON register with fused
// multiply-add and reduces it across lanes.
func dot4SIMD(a, b []float32) float32 {
	n := len(a)
	acc := asm.ZeroFloat32x4()
	for k := 0; k+4 <= n; k += 4 {
		va := asm.LoadFloat32x4Slice(a[k:])
		vb := asm.LoadFloat32x4Slice(b[k:])
		acc = va.MulAdd(vb, acc)
	}
	return acc.ReduceSum()
}
