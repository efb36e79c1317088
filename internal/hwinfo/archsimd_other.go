//go:build !amd64 || !goexperiment.simd

package hwinfo

func archFeatures() []Feature { return nil }
