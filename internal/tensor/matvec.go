package tensor

import "sync"

// MatVec computes dst = w * x, splitting rows over up to workers goroutines.
// workers <= 1 runs on the calling goroutine.
func MatVec(dst []float32, w *Mat, x []float32, workers int) {
	if w.R == 0 || w.C == 0 {
		return
	}
	if len(dst) < w.R || len(x) < w.C {
		panic("matvec shape mismatch")
	}

	workers = min(workers, w.R)
	if workers <= 1 {
		matVecRange(dst, w, x, 0, w.R)
		return
	}

	chunk := (w.R + workers - 1) / workers
	var wg sync.WaitGroup
	for rs := 0; rs < w.R; rs += chunk {
		re := min(rs+chunk, w.R)
		wg.Go(func() { matVecRange(dst, w, x, rs, re) })
	}
	wg.Wait()
}

func matVecRange(dst []float32, w *Mat, x []float32, rs, re int) {
	for i := rs; i < re; i++ {
		dst[i] = Dot(w.Data[i*w.Stride:i*w.Stride+w.C], x)
	}
}
