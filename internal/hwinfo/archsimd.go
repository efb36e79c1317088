//go:build amd64 && goexperiment.simd

package hwinfo

import "simd/archsimd"

// archFeatures reports what the archsimd package itself detected, which is
// what gates the simd kernel.
func archFeatures() []Feature {
	return []Feature{
		{Name: "archsimd.AVX", Present: archsimd.X86.AVX()},
		{Name: "archsimd.AVX2", Present: archsimd.X86.AVX2()},
		{Name: "archsimd.FMA", Present: archsimd.X86.FMA()},
		{Name: "archsimd.AVX512", Present: archsimd.X86.AVX512()},
	}
}
