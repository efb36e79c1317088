//go:build amd64 && goexperiment.simd

package gemm

import "simd/archsimd"

func init() {
	cpu.HasFMA = archsimd.X86.AVX() && archsimd.X86.FMA() && !noSIMD()
}

// dot4SIMD accumulates into one 128-bit register and reduces it
// horizontally.
func dot4SIMD(a, b []float32) float32 {
	n := len(a)
	var acc archsimd.Float32x4
	for k := 0; k+4 <= n; k += 4 {
		va := archsimd.LoadFloat32x4Slice(a[k:])
		vb := archsimd.LoadFloat32x4Slice(b[k:])
		acc = va.MulAdd(vb, acc)
	}

	var lanes [4]float32
	acc.Store(&lanes)
	return lanes[0] + lanes[1] + lanes[2] + lanes[3]
}
