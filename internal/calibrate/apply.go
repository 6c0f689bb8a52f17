// Package calibrate applies a passband to raw visibilities and writes the
// calibrated archive together with its per-baseline time series.
package calibrate

import (
	"fmt"
	"log"
	"math/cmplx"

	"github.com/saviobatista/ytla-corr/internal/oneh5"
	"github.com/saviobatista/ytla-corr/internal/storage"
	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
)

// Provenance describes where the passband of a calibrated archive came from
type Provenance struct {
	Source   string
	PhaseCal bool
	GainCal  bool
	RunID    string
}

// Apply divides every time sample of a's cross-correlations by the passband,
// in place. a is consumed: its cross cube holds calibrated data afterwards
// and must not be shared with other readers while Apply runs. Only one
// time slice is allocated. Zero passband entries are not guarded against.
func Apply(a *vis.Archive, pb *vis.Passband) error {
	if err := pb.CheckArchive(a); err != nil {
		return err
	}

	slice := make([]complex128, len(pb.Values))
	for t := 0; t < a.Samples; t++ {
		a.TimeSlice(slice, t)
		for i, v := range pb.Values {
			slice[i] /= v
		}
		a.SetTimeSlice(slice, t)
	}
	return nil
}

// WriteCalibrated saves the calibrated archive to path and appends the
// passband and its normalization as auxiliary datasets
func WriteCalibrated(path string, a *vis.Archive, pb *vis.Passband, prov Provenance) error {
	log.Printf("saving calibrated vis in %s", path)
	if err := oneh5.Save(path, a); err != nil {
		return fmt.Errorf("failed to save calibrated archive: %w", err)
	}

	log.Println("adding relative passband")
	err := oneh5.AppendDataset(path, oneh5.DatasetPassband, oneh5.Dataset{
		Dims:    []uint{vis.Sidebands, uint(pb.Baselines), uint(pb.Channels)},
		Complex: pb.Values,
		Attrs: map[string]interface{}{
			"calsrc":   prov.Source,
			"phasecal": prov.PhaseCal,
			"gaincal":  prov.GainCal,
			"runid":    prov.RunID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to append passband: %w", err)
	}

	log.Println("adding normalization of passband")
	err = oneh5.AppendDataset(path, oneh5.DatasetGain, oneh5.Dataset{
		Dims: []uint{vis.Sidebands, uint(pb.Baselines)},
		Real: pb.Norm,
		Attrs: map[string]interface{}{
			"chmin": pb.ChMin,
			"chmax": pb.ChMax,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to append gain: %w", err)
	}
	return nil
}

// ChannelAveragedAmplitudes returns |mean(cross[s,b,chMin:chMax,t])|
// indexed [s*Baselines+b][t]
func ChannelAveragedAmplitudes(a *vis.Archive, chMin, chMax int) ([][]float64, error) {
	avg, err := a.ChannelAverage(chMin, chMax)
	if err != nil {
		return nil, err
	}
	amps := make([][]float64, len(avg))
	for i, series := range avg {
		amps[i] = make([]float64, len(series))
		for t, v := range series {
			amps[i][t] = cmplx.Abs(v)
		}
	}
	return amps, nil
}

// SeriesName returns the ASCII series name of one antenna pair and sideband
func SeriesName(base string, bl vis.Baseline, sideband int) string {
	return fmt.Sprintf("%s.%s.%s_time", base, bl, types.SidebandNames[sideband])
}

// ExportASCII writes the channel-averaged amplitude of every (sideband,
// antenna pair) as a one-value-per-line series into store
func ExportASCII(store *storage.Storage, base string, a *vis.Archive, chMin, chMax int) error {
	amps, err := ChannelAveragedAmplitudes(a, chMin, chMax)
	if err != nil {
		return err
	}

	log.Printf("saving ascii outputs in %s", store.Dir())
	bls := vis.Baselines(a.Antennas)
	for s := 0; s < vis.Sidebands; s++ {
		for b, bl := range bls {
			if err := store.WriteSeries(SeriesName(base, bl, s), amps[s*a.Baselines+b]); err != nil {
				return err
			}
		}
	}
	return nil
}
