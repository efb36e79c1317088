//go:build !(amd64 && goexperiment.simd) && !(arm64 && !noasm)

package gemm

func dot4SIMD(a, b []float32) float32 {
	return dot4Scalar(a, b)
}
