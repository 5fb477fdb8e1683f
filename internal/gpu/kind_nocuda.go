//go:build !cuda
// +build !cuda

package gpu

// CUDACompiled reports whether the cuBLASXt backend is linked in.
const CUDACompiled = false

// DefaultKind lets host-only builds run the loop on the CPU.
const DefaultKind = KindAuto
