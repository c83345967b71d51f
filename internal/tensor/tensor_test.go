package tensor

import (
	"math"
	"testing"
)

func matVecNaive(dst []float32, w *Mat, x []float32) {
	for i := 0; i < w.R; i++ {
		var sum float32
		for j := 0; j < w.C; j++ {
			sum += w.Row(i)[j] * x[j]
		}
		dst[i] = sum
	}
}

func TestMatVecMatchesNaive(t *testing.T) {
	t.Parallel()
	w := NewMat(37, 16)
	FillRand(&w, 7, 2)
	x := make([]float32, 16)
	for i := range x {
		x[i] = float32(i) * 0.25
	}
	want := make([]float32, w.R)
	matVecNaive(want, &w, x)

	for _, workers := range []int{0, 1, 2, 4, 8, 64} {
		got := make([]float32, w.R)
		MatVec(got, &w, x, workers)
		for i := range got {
			if math.Abs(float64(got[i]-want[i])) > 1e-5 {
				t.Fatalf("workers=%d row %d: got %f want %f", workers, i, got[i], want[i])
			}
		}
	}
}

func TestFillRandDeterministic(t *testing.T) {
	t.Parallel()
	a := NewMat(4, 4)
	b := NewMat(4, 4)
	FillRand(&a, 99, 0.02)
	FillRand(&b, 99, 0.02)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("value %d mismatch: %f vs %f", i, a.Data[i], b.Data[i])
		}
		if a.Data[i] < -0.01 || a.Data[i] > 0.01 {
			t.Fatalf("value %d out of range: %f", i, a.Data[i])
		}
	}
}

func TestRMSNormUnitWeight(t *testing.T) {
	t.Parallel()
	src := []float32{3, 4}
	dst := make([]float32, 2)
	RMSNorm(dst, src, nil, 0)
	// rms = sqrt((9+16)/2)
	rms := float32(math.Sqrt(12.5))
	if math.Abs(float64(dst[0]-3/rms)) > 1e-5 || math.Abs(float64(dst[1]-4/rms)) > 1e-5 {
		t.Fatalf("rmsnorm mismatch: %v", dst)
	}
}

func TestNewMatRejectsOverflow(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for overflowing shape")
		}
	}()
	_ = NewMat(1<<60, 16)
}
