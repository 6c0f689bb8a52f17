package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/saviobatista/ytla-corr/internal/closure"
	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/oneh5"
	"github.com/saviobatista/ytla-corr/internal/storage"
	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
)

// ClosureRequest names the inputs of one closure phase export
type ClosureRequest struct {
	ArchivePath string
	// Channels averaged for the time series; nil uses the configured window
	Channels *config.ChannelRange
	// TimeWindow limits the samples to [t1, t2] seconds after the first one
	TimeWindow *[2]float64
	// OutDir defaults to <archive dir>/closure
	OutDir string
}

// ClosureSeriesName returns the series file name of a triangle, sideband
// and axis ("chan" or "time")
func ClosureSeriesName(base string, tri [3]int, sideband int, axis string) string {
	return fmt.Sprintf("%s.%d%d%d.%s_%s", base, tri[0], tri[1], tri[2], types.SidebandNames[sideband], axis)
}

// Closure forms the closure products of an archive and writes, per triangle
// and sideband, the phase of the time average per channel and the phase of
// the channel average per sample
func (r *Runner) Closure(ctx context.Context, req ClosureRequest) (*closure.Result, error) {
	a, err := oneh5.Load(req.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", req.ArchivePath, err)
	}

	start := time.Now()
	res, err := closure.CombineWindow(a, req.TimeWindow)
	if err != nil {
		return nil, err
	}

	chr := closureWindow(req.Channels, r.Config.ClosureChannels, a.Channels)

	outDir := req.OutDir
	if outDir == "" {
		outDir = filepath.Join(filepath.Dir(req.ArchivePath), "closure")
	}
	base := strings.TrimSuffix(filepath.Base(req.ArchivePath), ".oneh5")
	store := storage.New(outDir, r.Config.CompressASCII)

	if err := store.WriteSeries(base+".times", res.Times); err != nil {
		return nil, err
	}
	for s := 0; s < vis.Sidebands; s++ {
		for k, tri := range res.Triangles {
			if err := store.WriteSeries(ClosureSeriesName(base, tri, s, "chan"), res.ChannelPhase(s, k)); err != nil {
				return nil, err
			}
			tp, err := res.TimePhase(s, k, chr.Min, chr.Max)
			if err != nil {
				return nil, err
			}
			if err := store.WriteSeries(ClosureSeriesName(base, tri, s, "time"), tp); err != nil {
				return nil, err
			}
		}
	}
	log.Printf("wrote %d closure series for triangles %s to %s",
		store.Written(), strings.Join(res.Labels, ", "), outDir)
	r.Stats.AddProcessingTime(time.Since(start))
	return res, nil
}

// closureWindow returns the time-series channel window: the requested range
// when valid, else the configured default, else the full band
func closureWindow(req *config.ChannelRange, def config.ChannelRange, nch int) config.ChannelRange {
	if req == nil {
		req = &def
	} else if !req.Valid(nch) && def.Valid(nch) {
		log.Printf("Warning: invalid channel range [%d, %d), using default [%d, %d)", req.Min, req.Max, def.Min, def.Max)
		return def
	}
	if !req.Valid(nch) {
		log.Printf("Warning: invalid channel range [%d, %d), using [0, %d)", req.Min, req.Max, nch)
		return config.ChannelRange{Min: 0, Max: nch}
	}
	return *req
}
