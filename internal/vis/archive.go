// Package vis holds the in-memory model of a correlator observation: the
// per-antenna auto-correlation cube, the per-baseline cross-correlation cube
// and their timestamps.
//
// Both cubes are stored flat in C order so they map one-to-one onto the
// datasets of the consolidated archive file:
//
//	auto [sideband][antenna][channel][time]   float64
//	cross[sideband][baseline][channel][time]  complex128
package vis

import (
	"errors"
	"fmt"
)

// Sidebands is the fixed number of sidebands (lsb, usb)
const Sidebands = 2

var (
	// ErrShapeMismatch is returned when array shapes disagree with each other
	ErrShapeMismatch = errors.New("vis: shape mismatch")

	// ErrChannelRange is returned for a channel window outside [0, nch)
	ErrChannelRange = errors.New("vis: invalid channel range")
)

// Archive is a multi-baseline visibility data set
type Archive struct {
	Antennas  int
	Baselines int
	Channels  int
	Samples   int

	Timestamps []float64
	Auto       []float64
	Cross      []complex128

	// MissingAuto[s*Antennas+a] and MissingCross[s*Baselines+b] are set for
	// slices whose source file was absent when the archive was assembled
	MissingAuto  []bool
	MissingCross []bool
}

// New allocates a zeroed archive for na antennas, nch channels and n samples
func New(na, nch, n int) *Archive {
	nb := BaselineCount(na)
	return &Archive{
		Antennas:     na,
		Baselines:    nb,
		Channels:     nch,
		Samples:      n,
		Timestamps:   make([]float64, n),
		Auto:         make([]float64, Sidebands*na*nch*n),
		Cross:        make([]complex128, Sidebands*nb*nch*n),
		MissingAuto:  make([]bool, Sidebands*na),
		MissingCross: make([]bool, Sidebands*nb),
	}
}

// Validate checks the shape invariants of the archive
func (a *Archive) Validate() error {
	if a.Antennas < 1 || a.Channels < 1 {
		return fmt.Errorf("%w: na=%d nch=%d", ErrShapeMismatch, a.Antennas, a.Channels)
	}
	if a.Baselines != BaselineCount(a.Antennas) {
		return fmt.Errorf("%w: nb=%d for na=%d", ErrShapeMismatch, a.Baselines, a.Antennas)
	}
	if len(a.Timestamps) != a.Samples {
		return fmt.Errorf("%w: %d timestamps for %d samples", ErrShapeMismatch, len(a.Timestamps), a.Samples)
	}
	if len(a.Auto) != Sidebands*a.Antennas*a.Channels*a.Samples {
		return fmt.Errorf("%w: auto has %d values", ErrShapeMismatch, len(a.Auto))
	}
	if len(a.Cross) != Sidebands*a.Baselines*a.Channels*a.Samples {
		return fmt.Errorf("%w: cross has %d values", ErrShapeMismatch, len(a.Cross))
	}
	if len(a.MissingAuto) != Sidebands*a.Antennas || len(a.MissingCross) != Sidebands*a.Baselines {
		return fmt.Errorf("%w: missing-slice bitmap", ErrShapeMismatch)
	}
	return nil
}

// AutoIndex returns the flat index of auto[s][ant][ch][t]
func (a *Archive) AutoIndex(s, ant, ch, t int) int {
	return ((s*a.Antennas+ant)*a.Channels+ch)*a.Samples + t
}

// CrossIndex returns the flat index of cross[s][b][ch][t]
func (a *Archive) CrossIndex(s, b, ch, t int) int {
	return ((s*a.Baselines+b)*a.Channels+ch)*a.Samples + t
}

// AutoAt returns auto[s][ant][ch][t]
func (a *Archive) AutoAt(s, ant, ch, t int) float64 {
	return a.Auto[a.AutoIndex(s, ant, ch, t)]
}

// CrossAt returns cross[s][b][ch][t]
func (a *Archive) CrossAt(s, b, ch, t int) complex128 {
	return a.Cross[a.CrossIndex(s, b, ch, t)]
}

// CrossSeries returns the time series of one (sideband, baseline, channel)
// cell. The slice aliases the archive.
func (a *Archive) CrossSeries(s, b, ch int) []complex128 {
	i := a.CrossIndex(s, b, ch, 0)
	return a.Cross[i : i+a.Samples]
}

// AutoSeries returns the time series of one (sideband, antenna, channel)
// cell. The slice aliases the archive.
func (a *Archive) AutoSeries(s, ant, ch int) []float64 {
	i := a.AutoIndex(s, ant, ch, 0)
	return a.Auto[i : i+a.Samples]
}

// CrossSpectrum copies the channel spectrum of one (sideband, baseline) at
// time sample t into dst, which must hold Channels values
func (a *Archive) CrossSpectrum(dst []complex128, s, b, t int) []complex128 {
	for ch := range dst[:a.Channels] {
		dst[ch] = a.Cross[a.CrossIndex(s, b, ch, t)]
	}
	return dst[:a.Channels]
}

// TimeSlice copies cross[:, :, :, t] into dst, laid out like a Passband's
// Values ([sideband][baseline][channel])
func (a *Archive) TimeSlice(dst []complex128, t int) []complex128 {
	n := Sidebands * a.Baselines * a.Channels
	dst = dst[:n]
	for i := range dst {
		dst[i] = a.Cross[i*a.Samples+t]
	}
	return dst
}

// SetTimeSlice writes src, laid out like TimeSlice's result, back into
// cross[:, :, :, t]
func (a *Archive) SetTimeSlice(src []complex128, t int) {
	for i, v := range src {
		a.Cross[i*a.Samples+t] = v
	}
}

// RelativeTime returns the timestamps relative to the first one
func (a *Archive) RelativeTime() []float64 {
	rel := make([]float64, len(a.Timestamps))
	if len(rel) == 0 {
		return rel
	}
	t0 := a.Timestamps[0]
	for i, t := range a.Timestamps {
		rel[i] = t - t0
	}
	return rel
}

// MissingCount returns the number of auto and cross slices marked missing
func (a *Archive) MissingCount() int {
	n := 0
	for _, m := range a.MissingAuto {
		if m {
			n++
		}
	}
	for _, m := range a.MissingCross {
		if m {
			n++
		}
	}
	return n
}

// ChannelAverage returns the cross-correlation averaged over channels
// [chMin, chMax), indexed [s*Baselines+b][t]
func (a *Archive) ChannelAverage(chMin, chMax int) ([][]complex128, error) {
	if chMin < 0 || chMin >= chMax || chMax > a.Channels {
		return nil, fmt.Errorf("%w: [%d:%d) for %d channels", ErrChannelRange, chMin, chMax, a.Channels)
	}
	inv := complex(1./float64(chMax-chMin), 0)
	out := make([][]complex128, Sidebands*a.Baselines)
	for s := 0; s < Sidebands; s++ {
		for b := 0; b < a.Baselines; b++ {
			avg := make([]complex128, a.Samples)
			for ch := chMin; ch < chMax; ch++ {
				for t, v := range a.CrossSeries(s, b, ch) {
					avg[t] += v
				}
			}
			for t := range avg {
				avg[t] *= inv
			}
			out[s*a.Baselines+b] = avg
		}
	}
	return out, nil
}

// AutoChannelAverage returns the auto-correlation averaged over channels
// [chMin, chMax), indexed [s*Antennas+ant][t]
func (a *Archive) AutoChannelAverage(chMin, chMax int) ([][]float64, error) {
	if chMin < 0 || chMin >= chMax || chMax > a.Channels {
		return nil, fmt.Errorf("%w: [%d:%d) for %d channels", ErrChannelRange, chMin, chMax, a.Channels)
	}
	inv := 1. / float64(chMax-chMin)
	out := make([][]float64, Sidebands*a.Antennas)
	for s := 0; s < Sidebands; s++ {
		for ant := 0; ant < a.Antennas; ant++ {
			avg := make([]float64, a.Samples)
			for ch := chMin; ch < chMax; ch++ {
				for t, v := range a.AutoSeries(s, ant, ch) {
					avg[t] += v
				}
			}
			for t := range avg {
				avg[t] *= inv
			}
			out[s*a.Antennas+ant] = avg
		}
	}
	return out, nil
}
