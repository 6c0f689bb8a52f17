// Package closure forms closure-phase triple products from the
// cross-correlations of an antenna array.
package closure

import (
	"errors"
	"fmt"
	"log"
	"math/cmplx"

	"github.com/saviobatista/ytla-corr/internal/vis"
)

// ErrTooFewAntennas is returned for arrays with fewer than three antennas
var ErrTooFewAntennas = errors.New("closure: needs at least 3 antennas")

// Result holds one closure product per triangle, per sideband, channel and
// selected time sample, indexed [sideband][triangle][channel][time]
type Result struct {
	Antennas  int
	Channels  int
	Samples   int
	Triangles [][3]int
	// Excluded[k] is the antenna left out of triangle k, -1 for the single
	// triangle of a 3-element array
	Excluded []int
	Labels   []string
	// Times are the selected sample times relative to the first timestamp
	Times  []float64
	Values []complex128
}

// Index returns the flat index of values[s][k][ch][t]
func (r *Result) Index(s, k, ch, t int) int {
	return ((s*len(r.Triangles)+k)*r.Channels+ch)*r.Samples + t
}

// Triangles lists the antenna triangles the combiner forms. For each
// excluded antenna k the first three antennas of the remaining ascending
// list are used, so arrays above four elements get one triangle per excluded
// antenna rather than every triangle without it.
func Triangles(na int) ([][3]int, []int, error) {
	if na < 3 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrTooFewAntennas, na)
	}
	if na == 3 {
		return [][3]int{{0, 1, 2}}, []int{-1}, nil
	}

	tris := make([][3]int, 0, na)
	excl := make([]int, 0, na)
	for k := 0; k < na; k++ {
		var r []int
		for ant := 0; ant < na && len(r) < 3; ant++ {
			if ant != k {
				r = append(r, ant)
			}
		}
		tris = append(tris, [3]int{r[0], r[1], r[2]})
		excl = append(excl, k)
	}
	return tris, excl, nil
}

// Label returns the baseline label of a triangle, e.g. "01 12 02*"
func Label(tri [3]int) string {
	return fmt.Sprintf("%d%d %d%d %d%d*", tri[0], tri[1], tri[1], tri[2], tri[0], tri[2])
}

// Combine forms cross[r0r1] * cross[r1r2] * conj(cross[r0r2]) for every
// triangle over all time samples
func Combine(a *vis.Archive) (*Result, error) {
	return CombineWindow(a, nil)
}

// CombineWindow is Combine restricted to samples within [t1, t2] seconds of
// the first timestamp. A negative t1 or a window selecting nothing uses all
// samples with a warning.
func CombineWindow(a *vis.Archive, window *[2]float64) (*Result, error) {
	tris, excl, err := Triangles(a.Antennas)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	rel := a.RelativeTime()
	sel := selectSamples(rel, window)

	res := &Result{
		Antennas:  a.Antennas,
		Channels:  a.Channels,
		Samples:   len(sel),
		Triangles: tris,
		Excluded:  excl,
		Labels:    make([]string, len(tris)),
		Times:     make([]float64, len(sel)),
		Values:    make([]complex128, vis.Sidebands*len(tris)*a.Channels*len(sel)),
	}
	for i, t := range sel {
		res.Times[i] = rel[t]
	}

	for k, tri := range tris {
		res.Labels[k] = Label(tri)
		b01 := vis.BaselineIndex(tri[0], tri[1], a.Antennas)
		b12 := vis.BaselineIndex(tri[1], tri[2], a.Antennas)
		b02 := vis.BaselineIndex(tri[0], tri[2], a.Antennas)

		for s := 0; s < vis.Sidebands; s++ {
			for ch := 0; ch < a.Channels; ch++ {
				x01 := a.CrossSeries(s, b01, ch)
				x12 := a.CrossSeries(s, b12, ch)
				x02 := a.CrossSeries(s, b02, ch)
				out := res.Values[res.Index(s, k, ch, 0):res.Index(s, k, ch, 0)+len(sel)]
				for i, t := range sel {
					out[i] = x01[t] * x12[t] * cmplx.Conj(x02[t])
				}
			}
		}
	}
	return res, nil
}

// ChannelPhase returns, per channel, the phase of the time-averaged closure
// product of triangle k
func (r *Result) ChannelPhase(s, k int) []float64 {
	out := make([]float64, r.Channels)
	for ch := range out {
		var sum complex128
		for t := 0; t < r.Samples; t++ {
			sum += r.Values[r.Index(s, k, ch, t)]
		}
		out[ch] = cmplx.Phase(sum)
	}
	return out
}

// TimePhase returns, per sample, the phase of the closure product of
// triangle k averaged over channels [chMin, chMax)
func (r *Result) TimePhase(s, k, chMin, chMax int) ([]float64, error) {
	if chMin < 0 || chMin >= chMax || chMax > r.Channels {
		return nil, fmt.Errorf("%w: [%d:%d) for %d channels", vis.ErrChannelRange, chMin, chMax, r.Channels)
	}
	out := make([]float64, r.Samples)
	for t := range out {
		var sum complex128
		for ch := chMin; ch < chMax; ch++ {
			sum += r.Values[r.Index(s, k, ch, t)]
		}
		out[t] = cmplx.Phase(sum)
	}
	return out, nil
}

func selectSamples(rel []float64, window *[2]float64) []int {
	var sel []int
	if window != nil && window[0] >= 0 {
		for i, t := range rel {
			if t >= window[0] && t <= window[1] {
				sel = append(sel, i)
			}
		}
		if len(sel) == 0 {
			log.Printf("Warning: time range [%g, %g] selects no samples, using full range", window[0], window[1])
		}
	} else if window != nil {
		log.Printf("Warning: input time range invalid, using full range")
	}
	if len(sel) == 0 {
		sel = make([]int, len(rel))
		for i := range sel {
			sel[i] = i
		}
	}
	return sel
}
