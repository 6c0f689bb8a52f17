package sefd

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var testParams = Params{
	FluxJy:          1000,
	IntegrationTime: 0.5,
	BandwidthHz:     1.6e9 * 720. / 1024.,
}

func allGood(na int) []bool {
	good := make([]bool, na)
	for i := range good {
		good[i] = true
	}
	return good
}

func TestPInv_Invertible(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{4, 7, 2, 6})
	got, err := PInv(m, DefaultRCond)
	require.NoError(t, err)

	want := mat.NewDense(2, 2, []float64{0.6, -0.7, -0.2, 0.4})
	assert.True(t, mat.EqualApprox(got, want, 1e-12), "pinv = %v", mat.Formatted(got))
}

func TestPInv_Rectangular(t *testing.T) {
	a := DesignMatrix(allGood(5))
	ainv, err := PInv(a, DefaultRCond)
	require.NoError(t, err)

	r, c := ainv.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 10, c)

	var id mat.Dense
	id.Mul(ainv, a)
	eye := mat.NewDiagDense(5, []float64{1, 1, 1, 1, 1})
	assert.True(t, mat.EqualApprox(&id, eye, 1e-9))
}

func TestPInv_Cutoff(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 0, 0, 1e-8})
	got, err := PInv(m, DefaultRCond)
	require.NoError(t, err)
	assert.InDelta(t, 1, got.At(0, 0), 1e-12)
	assert.Equal(t, 0., got.At(1, 1))

	zero := mat.NewDense(3, 2, nil)
	got, err = PInv(zero, DefaultRCond)
	require.NoError(t, err)
	assert.True(t, mat.Equal(got, mat.NewDense(2, 3, nil)))
}

func TestDesignMatrix(t *testing.T) {
	good := []bool{true, true, false, true}
	a := DesignMatrix(good)

	for b, bl := range vis.Baselines(4) {
		for ant := 0; ant < 4; ant++ {
			want := 0.
			if (ant == bl.I || ant == bl.J) && good[bl.I] && good[bl.J] {
				want = 0.5
			}
			assert.Equal(t, want, a.At(b, ant), "baseline %s antenna %d", bl, ant)
		}
	}
}

func geometricAmplitudes(power []float64) []float64 {
	bls := vis.Baselines(len(power))
	avg := make([]float64, len(bls))
	for b, bl := range bls {
		avg[b] = math.Sqrt(power[bl.I] * power[bl.J])
	}
	return avg
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func TestSolvePatch_RecoversGeometricMeanModel(t *testing.T) {
	power := []float64{3, 5, 7, 2, 11, 4, 6}
	avg := geometricAmplitudes(power)

	sol, err := SolvePatch(avg, ones(len(avg)), allGood(7), testParams)
	require.NoError(t, err)

	scale := math.Sqrt(2*testParams.BandwidthHz*testParams.IntegrationTime) * testParams.FluxJy
	for i, p := range power {
		assert.InDelta(t, p, sol.Power[i], 1e-9*p)
		assert.InDelta(t, scale/p, sol.SEFD[i], 1e-6*scale/p)
	}
	for _, r := range sol.Residual {
		assert.InDelta(t, 0, r, 1e-9)
	}
}

func TestSolvePatch_ProductInputRecoversSquares(t *testing.T) {
	power := []float64{1.5, 2, 3, 4}
	bls := vis.Baselines(4)
	avg := make([]float64, len(bls))
	for b, bl := range bls {
		avg[b] = power[bl.I] * power[bl.J]
	}

	sol, err := SolvePatch(avg, ones(len(avg)), allGood(4), testParams)
	require.NoError(t, err)
	for i, p := range power {
		assert.InDelta(t, p*p, sol.Power[i], 1e-9*p*p)
	}
}

func TestSolvePatch_FlaggedAntenna(t *testing.T) {
	power := []float64{3, 5, 7, 2, 11, 4, 6}
	avg := geometricAmplitudes(power)
	good := allGood(7)
	good[2] = false

	// corrupt every baseline touching antenna 2
	for b, bl := range vis.Baselines(7) {
		if bl.I == 2 || bl.J == 2 {
			avg[b] = 1e6
		}
	}

	sol, err := SolvePatch(avg, ones(len(avg)), good, testParams)
	require.NoError(t, err)

	for b, bl := range vis.Baselines(7) {
		if bl.I == 2 || bl.J == 2 {
			assert.Equal(t, flaggedPeak, sol.Peak[b])
		}
	}
	for i, p := range power {
		if i == 2 {
			assert.Equal(t, 0., sol.SEFD[i])
			continue
		}
		assert.InDelta(t, p, sol.Power[i], 1e-9*p, "antenna %d", i)
		assert.Greater(t, sol.SEFD[i], 0.)
	}
}

func TestSolvePatch_DeadBaseline(t *testing.T) {
	power := []float64{3, 5, 7, 2, 11, 4, 6}
	scale := math.Sqrt(2*testParams.BandwidthHz*testParams.IntegrationTime) * testParams.FluxJy

	tests := []struct {
		name   string
		mutate func(avg, rms []float64)
	}{
		{name: "zero amplitude", mutate: func(avg, rms []float64) { avg[0] = 0 }},
		{name: "zero rms", mutate: func(avg, rms []float64) { rms[3] = 0 }},
		{name: "nan amplitude", mutate: func(avg, rms []float64) { avg[5] = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg := geometricAmplitudes(power)
			rms := ones(len(avg))
			tt.mutate(avg, rms)

			sol, err := SolvePatch(avg, rms, allGood(7), testParams)
			require.NoError(t, err)

			for i, p := range power {
				assert.InDelta(t, p, sol.Power[i], 1e-9*p, "antenna %d", i)
				assert.InDelta(t, scale/p, sol.SEFD[i], 1e-6*scale/p, "antenna %d", i)
				assert.False(t, math.IsInf(sol.SEFD[i], 0) || math.IsNaN(sol.SEFD[i]))
			}
		})
	}

	avg := geometricAmplitudes(power)
	avg[0] = 0
	sol, err := SolvePatch(avg, ones(len(avg)), allGood(7), testParams)
	require.NoError(t, err)
	assert.Equal(t, flaggedPeak, sol.Peak[0])
	assert.Equal(t, 0., sol.Data[0])
}

func TestSolvePatch_ShapeMismatch(t *testing.T) {
	_, err := SolvePatch([]float64{1, 2}, []float64{1, 2}, allGood(4), testParams)
	assert.ErrorIs(t, err, vis.ErrShapeMismatch)
}

// schedule builds 1 Hz series for one sideband: noise patches at both ends
// whose magnitudes alternate between 1 and 3 (population std 1) and two
// on-source patches at sqrt(P_i P_j) and twice that
func schedule(power []float64) ([][]complex128, []float64, []types.Patch) {
	rel := make([]float64, 40)
	for i := range rel {
		rel[i] = float64(i)
	}
	patches := []types.Patch{{On: 0, Off: 9}, {On: 10, Off: 19}, {On: 20, Off: 29}, {On: 100, Off: 110}, {On: 30, Off: 39}}

	avg := geometricAmplitudes(power)
	series := make([][]complex128, len(avg))
	for b := range series {
		s := make([]complex128, len(rel))
		for i, t := range rel {
			switch {
			case t < 10 || t >= 30:
				if i%2 == 0 {
					s[i] = complex(0, 1)
				} else {
					s[i] = complex(0, -3)
				}
			case t < 20:
				s[i] = complex(avg[b], 0)
			default:
				s[i] = complex(0, 2*avg[b])
			}
		}
		series[b] = s
	}
	return series, rel, patches
}

func TestNoiseRMS(t *testing.T) {
	series, rel, patches := schedule([]float64{1, 2, 3})

	rms, err := NoiseRMS(series, rel, patches[0], patches[len(patches)-1], RMSMagnitude)
	require.NoError(t, err)
	for _, r := range rms {
		assert.InDelta(t, 1, r, 1e-12)
	}

	// real part is 0, imaginary alternates +1/-3 (std 2)
	rms, err = NoiseRMS(series, rel, patches[0], patches[len(patches)-1], RMSReIm)
	require.NoError(t, err)
	for _, r := range rms {
		assert.InDelta(t, 1, r, 1e-12)
	}

	_, err = NoiseRMS(series, rel, types.Patch{On: 50, Off: 60}, types.Patch{On: 70, Off: 80}, RMSMagnitude)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestSolve(t *testing.T) {
	power := []float64{3, 5, 7, 2}
	series, rel, patches := schedule(power)

	records, err := Solve(series, rel, patches, allGood(4), testParams)
	require.NoError(t, err)

	// the empty patch is skipped
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Patch)
	assert.Equal(t, 14.5, records[0].Midpoint)
	assert.Equal(t, 2, records[1].Patch)

	for i, p := range power {
		assert.InDelta(t, p, records[0].Power[i], 1e-9*p)
		// doubling every amplitude doubles every power
		assert.InDelta(t, 2*p, records[1].Power[i], 1e-9*p)
		assert.InDelta(t, records[0].SEFD[i]/2, records[1].SEFD[i], 1e-6*records[0].SEFD[i])
	}
}

func TestSolve_Errors(t *testing.T) {
	series, rel, patches := schedule([]float64{1, 2, 3})

	_, err := Solve(series, rel, patches[:2], allGood(3), testParams)
	assert.ErrorIs(t, err, ErrTooFewPatches)

	short := [][]complex128{series[0][:5], series[1], series[2]}
	_, err = Solve(short, rel, patches, allGood(3), testParams)
	assert.ErrorIs(t, err, vis.ErrShapeMismatch)
}

func TestWriteLog(t *testing.T) {
	records := []types.SEFDRecord{
		{Patch: 1, Midpoint: 14.5, SEFD: []float64{1e6, 0}},
		{Patch: 2, Midpoint: 24.3, SEFD: []float64{123456.7, 2.5e7}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLog(&buf, 2, records))

	want := "#t, SEFD(Jy: ant0 ant1)\n" +
		"14.5 1.000e+06  0.000e+00  \n" +
		"24.3 1.235e+05  2.500e+07  \n"
	assert.Equal(t, want, buf.String())

	err := WriteLog(&buf, 3, records)
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	rec := types.SEFDRecord{Peak: []float64{2}, Residual: []float64{0}, Power: []float64{1.5}, SEFD: []float64{3e6}}
	require.NoError(t, WriteReport(&buf, rec))
	assert.True(t, strings.Contains(buf.String(), "SEFD (Jy)\n3.000e+06  \n"))
	assert.Equal(t, "result.patch_03", ReportName(3))
}

func TestLogName(t *testing.T) {
	assert.Equal(t, "obs.cal.oneh5.lsb.snr", LogName("obs.cal.oneh5", 0))
	assert.Equal(t, "obs.cal.oneh5.usb.snr", LogName("obs.cal.oneh5", 1))
}
