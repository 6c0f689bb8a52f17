// Package bandpass derives the normalized per-channel passband of every
// baseline from a calibrator observation.
package bandpass

import (
	"fmt"
	"log"
	"math"
	"math/cmplx"

	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
)

// Options controls passband estimation
type Options struct {
	// TimeWindow limits the calibrator samples to [t1, t2] seconds after its
	// first timestamp; nil uses all samples
	TimeWindow *[2]float64

	// Normalization channel window [ChMin, ChMax)
	ChMin int
	ChMax int

	// DefaultChannels replaces an invalid normalization window
	DefaultChannels config.ChannelRange

	// PhaseCal keeps the phase of the passband, GainCal keeps its amplitude
	PhaseCal bool
	GainCal  bool

	// Sigma is the Gaussian smoothing width in channels; 0 disables smoothing
	Sigma float64

	// FluxJy rescales the passband to an absolute flux density when positive
	FluxJy float64
}

// DefaultOptions returns full-range, phase and gain calibration options
// normalized over the configured calibration channels
func DefaultOptions(cfg config.Config) Options {
	return Options{
		ChMin:           cfg.CalChannels.Min,
		ChMax:           cfg.CalChannels.Max,
		DefaultChannels: cfg.CalChannels,
		PhaseCal:        true,
		GainCal:         true,
	}
}

// Fingerprint identifies the options that affect the estimated passband
func (o Options) Fingerprint() string {
	tw := "all"
	if o.TimeWindow != nil {
		tw = fmt.Sprintf("%g-%g", o.TimeWindow[0], o.TimeWindow[1])
	}
	return fmt.Sprintf("tw=%s;ch=%d-%d;def=%d-%d;p=%t;g=%t;s=%g;f=%g",
		tw, o.ChMin, o.ChMax, o.DefaultChannels.Min, o.DefaultChannels.Max,
		o.PhaseCal, o.GainCal, o.Sigma, o.FluxJy)
}

// Estimate derives the passband of every (sideband, baseline) from the
// calibrator archive. Invalid time or channel windows fall back to the full
// range or the default channels with a warning.
func Estimate(cal *vis.Archive, opts Options) (*vis.Passband, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if cal.Samples == 0 {
		return nil, fmt.Errorf("%w: calibrator has no samples", vis.ErrShapeMismatch)
	}

	sel := selectTimes(cal.RelativeTime(), opts.TimeWindow)
	chMin, chMax := opts.ChannelWindow(cal.Channels)

	var win []float64
	if opts.Sigma > 0 {
		log.Printf("smoothing with sigma=%g channels", opts.Sigma)
		win = gaussianWindow(opts.Sigma)
	}

	pb := vis.NewPassband(cal.Baselines, cal.Channels)
	pb.ChMin, pb.ChMax = chMin, chMax
	bls := vis.Baselines(cal.Antennas)

	inv := complex(1/float64(len(sel)), 0)
	for s := 0; s < vis.Sidebands; s++ {
		for b := 0; b < cal.Baselines; b++ {
			spec := pb.Spectrum(s, b)
			for ch := range spec {
				series := cal.CrossSeries(s, b, ch)
				var sum complex128
				for _, t := range sel {
					sum += series[t]
				}
				spec[ch] = sum * inv
			}

			if win != nil {
				convolveSame(spec, win)
			}

			norm := cmplx.Abs(pb.WindowMean(s, b, chMin, chMax))
			pb.Norm[s*cal.Baselines+b] = norm
			if norm == 0 || math.IsNaN(norm) {
				// left at unity with zero norm so that Apply stays finite
				log.Printf("Warning: %s baseline %s has no calibrator signal in [%d, %d)%s, passband set to unity",
					types.SidebandNames[s], bls[b], chMin, chMax, missingNote(cal.MissingCross[s*cal.Baselines+b]))
				pb.Norm[s*cal.Baselines+b] = 0
				for ch := range spec {
					spec[ch] = 1
				}
				continue
			}
			scale := complex(1/norm, 0)
			for ch := range spec {
				spec[ch] *= scale
			}

			if !opts.PhaseCal {
				for ch, v := range spec {
					spec[ch] = complex(cmplx.Abs(v), 0)
				}
			}
			if !opts.GainCal {
				for ch, v := range spec {
					spec[ch] = v / complex(cmplx.Abs(v), 0)
				}
			}
		}
	}

	rescaleFlux(pb, opts.FluxJy)
	return pb, nil
}

// Unity returns the passband of the null calibration: 1+0i everywhere with
// unit norm, rescaled when fluxJy is positive
func Unity(na, nch int, fluxJy float64) *vis.Passband {
	pb := vis.NewPassband(vis.BaselineCount(na), nch)
	for i := range pb.Values {
		pb.Values[i] = 1
	}
	for i := range pb.Norm {
		pb.Norm[i] = 1
	}
	rescaleFlux(pb, fluxJy)
	return pb
}

// rescaleFlux converts a relative passband into an absolute flux density
// calibration: passband *= norm/F, norm = F
func rescaleFlux(pb *vis.Passband, fluxJy float64) {
	if fluxJy <= 0 {
		return
	}
	for s := 0; s < vis.Sidebands; s++ {
		for b := 0; b < pb.Baselines; b++ {
			i := s*pb.Baselines + b
			if pb.Norm[i] == 0 {
				continue
			}
			scale := complex(pb.Norm[i]/fluxJy, 0)
			spec := pb.Spectrum(s, b)
			for ch := range spec {
				spec[ch] *= scale
			}
			pb.Norm[i] = fluxJy
		}
	}
}

func missingNote(missing bool) string {
	if missing {
		return " (per-baseline file missing at merge)"
	}
	return ""
}

// selectTimes returns the sample indices inside the window [t1, t2] of the
// relative times rel. A window that misses the data or selects nothing
// yields every sample.
func selectTimes(rel []float64, window *[2]float64) []int {
	all := func() []int {
		idx := make([]int, len(rel))
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if window == nil {
		return all()
	}

	t1, t2 := window[0], window[1]
	if t1 > rel[len(rel)-1] || t2 < rel[0] || t1 > t2 {
		log.Printf("Warning: invalid cal time range [%g, %g], using all range", t1, t2)
		return all()
	}

	var idx []int
	for i, t := range rel {
		if t >= t1 && t <= t2 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		log.Printf("Warning: cal time range [%g, %g] selects no samples, using all range", t1, t2)
		return all()
	}
	return idx
}

// ChannelWindow validates the normalization window against nch channels,
// falling back to DefaultChannels and then to the full band
func (opts Options) ChannelWindow(nch int) (int, int) {
	req := config.ChannelRange{Min: opts.ChMin, Max: opts.ChMax}
	if req.Valid(nch) {
		return req.Min, req.Max
	}
	if opts.DefaultChannels.Valid(nch) {
		log.Printf("Warning: invalid channel range [%d, %d), using default [%d, %d)",
			req.Min, req.Max, opts.DefaultChannels.Min, opts.DefaultChannels.Max)
		return opts.DefaultChannels.Min, opts.DefaultChannels.Max
	}
	log.Printf("Warning: invalid channel range [%d, %d), using [0, %d)", req.Min, req.Max, nch)
	return 0, nch
}
