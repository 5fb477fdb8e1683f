//go:build cuda
// +build cuda

package gpu

// CUDACompiled reports whether the cuBLASXt backend is linked in.
const CUDACompiled = true

// DefaultKind is cuda, so a missing device fails selection instead of
// falling back to the CPU.
const DefaultKind = KindCUDA
