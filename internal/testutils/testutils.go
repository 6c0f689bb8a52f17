package testutils

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"time"

	"github.com/saviobatista/ytla-corr/internal/vis"
)

// CrossFunc returns the synthetic cross-correlation of (sideband, baseline,
// channel, time sample)
type CrossFunc func(s int, bl vis.Baseline, ch, t int) complex128

// NewArchive builds an archive of na antennas, nch channels and n samples
// spaced dt seconds apart, filling cross from fn and auto with the magnitude
// of a unit-gain spectrum
func NewArchive(na, nch, n int, dt float64, fn CrossFunc) *vis.Archive {
	a := vis.New(na, nch, n)
	for t := range a.Timestamps {
		a.Timestamps[t] = 1.5e9 + dt*float64(t)
	}
	bls := vis.Baselines(na)
	for s := 0; s < vis.Sidebands; s++ {
		for b, bl := range bls {
			for ch := 0; ch < nch; ch++ {
				series := a.CrossSeries(s, b, ch)
				for t := range series {
					series[t] = fn(s, bl, ch, t)
				}
			}
		}
		for ant := 0; ant < na; ant++ {
			for ch := 0; ch < nch; ch++ {
				series := a.AutoSeries(s, ant, ch)
				for t := range series {
					series[t] = 1
				}
			}
		}
	}
	return a
}

// AntennaGains returns na deterministic complex gains with amplitudes in
// [0.5, 1.5) and arbitrary phases
func AntennaGains(na int, seed int64) []complex128 {
	rng := rand.New(rand.NewSource(seed))
	g := make([]complex128, na)
	for i := range g {
		g[i] = cmplx.Rect(0.5+rng.Float64(), 2*math.Pi*rng.Float64()-math.Pi)
	}
	return g
}

// Ripple returns a smooth complex instrumental response across nch channels
func Ripple(nch int) []complex128 {
	r := make([]complex128, nch)
	for ch := range r {
		x := float64(ch) / float64(nch)
		r[ch] = cmplx.Rect(1+0.3*math.Sin(6*math.Pi*x), 0.8*math.Cos(4*math.Pi*x))
	}
	return r
}

// GainArchive builds an archive whose cross-correlations follow
// g_i * conj(g_j) * ripple[ch] on every sample
func GainArchive(na, nch, n int, gains, ripple []complex128) *vis.Archive {
	return NewArchive(na, nch, n, 1, func(_ int, bl vis.Baseline, ch, _ int) complex128 {
		return gains[bl.I] * cmplx.Conj(gains[bl.J]) * ripple[ch]
	})
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
