package vis

import "fmt"

// Passband is the per-channel, per-baseline complex calibration factor,
// indexed [sideband][baseline][channel], together with the normalization
// Norm[sideband][baseline] that was divided out of it
type Passband struct {
	Baselines int
	Channels  int
	ChMin     int
	ChMax     int

	Values []complex128
	Norm   []float64
}

// NewPassband allocates a zeroed passband
func NewPassband(nb, nch int) *Passband {
	return &Passband{
		Baselines: nb,
		Channels:  nch,
		ChMax:     nch,
		Values:    make([]complex128, Sidebands*nb*nch),
		Norm:      make([]float64, Sidebands*nb),
	}
}

// Index returns the flat index of passband[s][b][ch]
func (p *Passband) Index(s, b, ch int) int {
	return (s*p.Baselines+b)*p.Channels + ch
}

// At returns passband[s][b][ch]
func (p *Passband) At(s, b, ch int) complex128 {
	return p.Values[p.Index(s, b, ch)]
}

// Spectrum returns the channel slice of one (sideband, baseline). The slice
// aliases the passband.
func (p *Passband) Spectrum(s, b int) []complex128 {
	i := p.Index(s, b, 0)
	return p.Values[i : i+p.Channels]
}

// NormAt returns norm[s][b]
func (p *Passband) NormAt(s, b int) float64 {
	return p.Norm[s*p.Baselines+b]
}

// WindowMean returns the mean of passband[s][b][chMin:chMax]
func (p *Passband) WindowMean(s, b, chMin, chMax int) complex128 {
	var sum complex128
	for _, v := range p.Spectrum(s, b)[chMin:chMax] {
		sum += v
	}
	return sum / complex(float64(chMax-chMin), 0)
}

// CheckArchive verifies that the passband can be applied to a
func (p *Passband) CheckArchive(a *Archive) error {
	if p.Baselines != a.Baselines || p.Channels != a.Channels {
		return fmt.Errorf("%w: passband [%d,%d,%d] vs cross [%d,%d,%d,%d]", ErrShapeMismatch,
			Sidebands, p.Baselines, p.Channels, Sidebands, a.Baselines, a.Channels, a.Samples)
	}
	if len(p.Values) != Sidebands*p.Baselines*p.Channels || len(p.Norm) != Sidebands*p.Baselines {
		return fmt.Errorf("%w: passband storage", ErrShapeMismatch)
	}
	return nil
}
