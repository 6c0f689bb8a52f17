package sefd

import (
	"gonum.org/v1/gonum/mat"
)

// DefaultRCond is the relative singular value cutoff of the solve
const DefaultRCond = 1e-6

// PInv returns the Moore-Penrose pseudo-inverse of m. Singular values at or
// below rcond times the largest one are treated as zero.
func PInv(m mat.Matrix, rcond float64) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, ErrSingular
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	inv := make([]float64, len(s))
	if len(s) > 0 {
		cutoff := rcond * s[0]
		for i, sv := range s {
			if sv > cutoff {
				inv[i] = 1 / sv
			}
		}
	}

	// V * diag(1/s) * U^T
	var vs mat.Dense
	vs.Mul(&v, mat.NewDiagDense(len(inv), inv))

	var out mat.Dense
	out.Mul(&vs, u.T())
	return &out, nil
}
