// Package tensor holds the small dense float32 kernels the reference engine
// runs on.
package tensor

import (
	"math"
	"math/rand/v2"
)

// Mat is a dense row-major matrix of float32 values. Stride equals C for
// matrices built here; out-of-range indices panic like ordinary slices.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a zeroed r x c matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	if c > 0 && r > math.MaxInt/c {
		panic("matrix size overflows int")
	}
	return Mat{R: r, C: c, Stride: c, Data: make([]float32, r*c)}
}

// Row returns a view of row i. Writes through the view update the matrix.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// FillRand fills the matrix with reproducible values in roughly (-scale/2, scale/2).
func FillRand(m *Mat, seed uint64, scale float32) {
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * scale
	}
}
