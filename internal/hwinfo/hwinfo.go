// Package hwinfo reports the CPU features relevant to the vector kernel and
// which inner loop the kernels will actually use.
package hwinfo

import (
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"golang.org/x/sys/cpu"

	"github.com/samcharles93/pigemm/internal/gemm"
)

type Feature struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Note    string `json:"note,omitempty"`
}

type Report struct {
	GOOS       string    `json:"goos"`
	GOARCH     string    `json:"goarch"`
	NumCPU     int       `json:"num_cpu"`
	GOMAXPROCS int       `json:"gomaxprocs"`
	Kernel     string    `json:"kernel"`
	Features   []Feature `json:"features"`
}

// Detect collects the report for the running machine.
func Detect() Report {
	r := Report{
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		Kernel:     "scalar",
	}
	if gemm.SIMD() {
		r.Kernel = "simd"
	}
	switch runtime.GOARCH {
	case "amd64":
		r.Features = []Feature{
			{Name: "SSE2", Present: cpu.X86.HasSSE2},
			{Name: "SSE4.1", Present: cpu.X86.HasSSE41},
			{Name: "AVX", Present: cpu.X86.HasAVX},
			{Name: "AVX2", Present: cpu.X86.HasAVX2},
			{Name: "FMA", Present: cpu.X86.HasFMA, Note: "required for the simd kernel"},
			{Name: "AVX512F", Present: cpu.X86.HasAVX512F},
		}
	case "arm64":
		r.Features = []Feature{
			{Name: "ASIMD", Present: cpu.ARM64.HasASIMD, Note: "NEON, required for the simd kernel"},
			{Name: "FP", Present: cpu.ARM64.HasFP},
			{Name: "ASIMDHP", Present: cpu.ARM64.HasASIMDHP, Note: "FP16 NEON"},
			{Name: "SVE", Present: cpu.ARM64.HasSVE},
		}
	case "arm":
		r.Features = []Feature{
			{Name: "VFPv4", Present: cpu.ARM.HasVFPv4, Note: "fused multiply-add"},
			{Name: "NEON", Present: cpu.ARM.HasNEON},
		}
	}
	r.Features = append(r.Features, archFeatures()...)
	return r
}

// Fprint writes r as an aligned table.
func Fprint(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "platform\t%s/%s\n", r.GOOS, r.GOARCH)
	fmt.Fprintf(tw, "cpus\t%d (GOMAXPROCS %d)\n", r.NumCPU, r.GOMAXPROCS)
	fmt.Fprintf(tw, "kernel\t%s\n", r.Kernel)
	for _, f := range r.Features {
		mark := "no"
		if f.Present {
			mark = "yes"
		}
		if f.Note != "" {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, mark, f.Note)
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", f.Name, mark)
		}
	}
	return tw.Flush()
}
