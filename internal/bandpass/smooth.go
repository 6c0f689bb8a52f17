package bandpass

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// gaussianWindow returns a unit-sum Gaussian window of length
// max(1, round(6*sigma)) centred at (M-1)/2
func gaussianWindow(sigma float64) []float64 {
	m := int(math.Round(6 * sigma))
	if m < 1 {
		m = 1
	}
	w := make([]float64, m)
	centre := float64(m-1) / 2
	for n := range w {
		x := (float64(n) - centre) / sigma
		w[n] = math.Exp(-0.5 * x * x)
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

// convolveSame convolves spec with the real window w and returns the central
// len(spec) samples of the full convolution, treating samples outside spec
// as zero. spec is overwritten with the result.
func convolveSame(spec []complex128, w []float64) {
	n, m := len(spec), len(w)
	if n == 0 || m == 0 {
		return
	}
	offset := (m - 1) / 2
	out := make([]complex128, n)
	for i := range out {
		k := i + offset // index into the full convolution
		var acc complex128
		for j := 0; j < m; j++ {
			src := k - j
			if src < 0 || src >= n {
				continue
			}
			acc += spec[src] * complex(w[j], 0)
		}
		out[i] = acc
	}
	copy(spec, out)
}
