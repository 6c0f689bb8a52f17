// Package sefd solves per-antenna power and system equivalent flux density
// from the baseline amplitudes of a calibrator tracked through a sequence of
// on-source patches.
//
// The baseline quantity is modelled as the geometric mean sqrt(P_i P_j) of
// the antenna powers: each row of the design matrix holds 0.5 at columns i
// and j, so amplitudes that scale as P_i P_j recover P_i squared.
package sefd

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/cmplx"

	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrTooFewPatches is returned when the schedule has no interior patch
	// between the two noise patches
	ErrTooFewPatches = errors.New("sefd: at least 3 patches required")

	// ErrSingular is returned when the design matrix cannot be factorized
	ErrSingular = errors.New("sefd: design matrix factorization failed")

	// ErrNoSamples is returned when the noise patches hold no samples
	ErrNoSamples = errors.New("sefd: no samples in noise patches")
)

// flaggedPeak stands in for the SNR of baselines touching a flagged antenna
// so that its logarithm stays finite
const flaggedPeak = 1e-30

// RMSMethod selects the noise estimator
type RMSMethod int

const (
	// RMSMagnitude is the population std of the complex magnitude
	RMSMagnitude RMSMethod = iota
	// RMSReIm is the mean of the population std of real and imaginary parts
	RMSReIm
)

// Params are the physical constants of a solve
type Params struct {
	FluxJy          float64
	IntegrationTime float64
	BandwidthHz     float64
	Method          RMSMethod
	RCond           float64
}

// patchSamples returns the indices of rel inside any of the patches
func patchSamples(rel []float64, patches ...types.Patch) []int {
	var idx []int
	for i, t := range rel {
		for _, p := range patches {
			if p.Contains(t) {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}

// NoiseRMS estimates the per-baseline noise from the samples of the first
// and last patch, which are assumed free of source signal. series holds one
// channel-averaged time series per baseline.
func NoiseRMS(series [][]complex128, rel []float64, first, last types.Patch, method RMSMethod) ([]float64, error) {
	idx := patchSamples(rel, first, last)
	if len(idx) == 0 {
		return nil, ErrNoSamples
	}

	rms := make([]float64, len(series))
	mag := make([]float64, len(idx))
	re := make([]float64, len(idx))
	im := make([]float64, len(idx))
	for b, s := range series {
		for k, t := range idx {
			mag[k] = cmplx.Abs(s[t])
			re[k] = real(s[t])
			im[k] = imag(s[t])
		}
		switch method {
		case RMSReIm:
			_, sr := stat.PopMeanStdDev(re, nil)
			_, si := stat.PopMeanStdDev(im, nil)
			rms[b] = (sr + si) / 2
		default:
			_, rms[b] = stat.PopMeanStdDev(mag, nil)
		}
	}
	return rms, nil
}

// DesignMatrix returns the baseline x antenna matrix with 0.5 at the two
// antennas of every baseline whose antennas are both good
func DesignMatrix(good []bool) *mat.Dense {
	na := len(good)
	bls := vis.Baselines(na)
	a := mat.NewDense(len(bls), na, nil)
	for b, bl := range bls {
		if good[bl.I] && good[bl.J] {
			a.Set(b, bl.I, 0.5)
			a.Set(b, bl.J, 0.5)
		}
	}
	return a
}

// Solution is the solve of one patch
type Solution struct {
	Peak     []float64
	Data     []float64
	LogPower []float64
	Residual []float64
	Power    []float64
	SEFD     []float64
}

// SolvePatch converts the mean baseline amplitudes of a patch into antenna
// powers and SEFDs. avg and rms are indexed by baseline, good by antenna.
func SolvePatch(avg, rms []float64, good []bool, p Params) (*Solution, error) {
	na := len(good)
	bls := vis.Baselines(na)
	if len(avg) != len(bls) || len(rms) != len(bls) {
		return nil, fmt.Errorf("%w: %d amplitudes, %d rms for %d baselines",
			vis.ErrShapeMismatch, len(avg), len(rms), len(bls))
	}

	sol := &Solution{
		Peak: make([]float64, len(bls)),
		Data: make([]float64, len(bls)),
	}
	a := DesignMatrix(good)
	used := make([]int, na)
	for b, bl := range bls {
		if !good[bl.I] || !good[bl.J] {
			sol.Peak[b] = flaggedPeak
			continue
		}
		peak := avg[b] / rms[b]
		data := math.Log(peak)
		if !(avg[b] > 0) || !(rms[b] > 0) || math.IsInf(data, 0) || math.IsNaN(data) {
			// dropped from the fit like a flagged antenna pair
			log.Printf("Warning: baseline %s has no usable amplitude (avg=%g, rms=%g), excluded from solve", bl, avg[b], rms[b])
			sol.Peak[b] = flaggedPeak
			a.Set(b, bl.I, 0)
			a.Set(b, bl.J, 0)
			continue
		}
		sol.Peak[b] = peak
		sol.Data[b] = data
		used[bl.I]++
		used[bl.J]++
	}

	rcond := p.RCond
	if rcond <= 0 {
		rcond = DefaultRCond
	}
	ainv, err := PInv(a, rcond)
	if err != nil {
		return nil, err
	}

	d := mat.NewVecDense(len(bls), sol.Data)
	var x, ax, r mat.VecDense
	x.MulVec(ainv, d)
	ax.MulVec(a, &x)
	r.SubVec(d, &ax)

	sol.LogPower = vecData(&x)
	sol.Residual = vecData(&r)
	sol.Power = make([]float64, na)
	sol.SEFD = make([]float64, na)
	scale := math.Sqrt(2*p.BandwidthHz*p.IntegrationTime) * p.FluxJy
	for i := range sol.Power {
		sol.Power[i] = math.Exp(sol.LogPower[i])
		if good[i] && used[i] > 0 {
			sol.SEFD[i] = scale / sol.Power[i]
		}
	}
	return sol, nil
}

func vecData(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// Solve runs SolvePatch on every interior patch of the schedule. series
// holds one channel-averaged time series per baseline of a single sideband
// and rel the sample times relative to the first timestamp. The first and
// last patch provide the noise reference. Patches without samples are
// skipped with a warning. The returned records carry patch index, midpoint
// and solution; identity fields are left to the caller.
func Solve(series [][]complex128, rel []float64, patches []types.Patch, good []bool, p Params) ([]types.SEFDRecord, error) {
	if len(patches) < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPatches, len(patches))
	}
	for b, s := range series {
		if len(s) != len(rel) {
			return nil, fmt.Errorf("%w: baseline %d has %d samples, expected %d",
				vis.ErrShapeMismatch, b, len(s), len(rel))
		}
	}

	rms, err := NoiseRMS(series, rel, patches[0], patches[len(patches)-1], p.Method)
	if err != nil {
		return nil, err
	}

	var records []types.SEFDRecord
	for pi := 1; pi < len(patches)-1; pi++ {
		patch := patches[pi]
		idx := patchSamples(rel, patch)
		if len(idx) == 0 {
			log.Printf("Warning: patch %d [%g, %g] has no samples, skipping", pi, patch.On, patch.Off)
			continue
		}

		avg := make([]float64, len(series))
		for b, s := range series {
			for _, t := range idx {
				avg[b] += cmplx.Abs(s[t])
			}
			avg[b] /= float64(len(idx))
		}

		sol, err := SolvePatch(avg, rms, good, p)
		if err != nil {
			return nil, fmt.Errorf("failed to solve patch %d: %w", pi, err)
		}
		records = append(records, types.SEFDRecord{
			Patch:    pi,
			Midpoint: patch.Midpoint(),
			Peak:     sol.Peak,
			SEFD:     sol.SEFD,
			Power:    sol.Power,
			Residual: sol.Residual,
		})
	}
	return records, nil
}
