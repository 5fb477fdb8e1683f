package gpu

import (
	"bufio"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense row-major buffer of doubles.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

// FillMatrix allocates an m×n matrix with every element set to val.
// Non-positive dimensions yield an empty matrix.
func FillMatrix(m, n int, val float64) *Matrix {
	if m <= 0 || n <= 0 {
		return &Matrix{}
	}
	data := make([]float64, m*n)
	for i := range data {
		data[i] = val
	}
	return &Matrix{Rows: m, Cols: n, Data: data}
}

// At returns the element at row i, column j.
func (x *Matrix) At(i, j int) float64 {
	return x.Data[i*x.Cols+j]
}

// Fill sets every element to val.
func (x *Matrix) Fill(val float64) {
	for i := range x.Data {
		x.Data[i] = val
	}
}

// Dense returns a gonum view sharing the same backing slice.
func (x *Matrix) Dense() *mat.Dense {
	return mat.NewDense(x.Rows, x.Cols, x.Data)
}

// Print writes one line per row, each element formatted as "%f ".
func (x *Matrix) Print(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < x.Rows; i++ {
		for j := 0; j < x.Cols; j++ {
			if _, err := fmt.Fprintf(bw, "%f ", x.At(i, j)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// checkGemmShapes verifies that C(m×n) = A(m×k) · B(k×n) is well formed.
func checkGemmShapes(a, b, c *Matrix) error {
	if a.Cols != b.Rows {
		return fmt.Errorf("%w: A is %dx%d, B is %dx%d", ErrDimensionMismatch, a.Rows, a.Cols, b.Rows, b.Cols)
	}
	if c.Rows != a.Rows || c.Cols != b.Cols {
		return fmt.Errorf("%w: C is %dx%d, want %dx%d", ErrDimensionMismatch, c.Rows, c.Cols, a.Rows, b.Cols)
	}
	for i, x := range []*Matrix{a, b, c} {
		if len(x.Data) != x.Rows*x.Cols {
			return fmt.Errorf("%w: %c holds %d elements, want %d", ErrDimensionMismatch, 'A'+i, len(x.Data), x.Rows*x.Cols)
		}
	}
	if a.Rows == 0 || a.Cols == 0 || b.Cols == 0 {
		return fmt.Errorf("%w: empty operand", ErrDimensionMismatch)
	}
	return nil
}
