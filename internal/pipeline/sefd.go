package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/saviobatista/ytla-corr/internal/oneh5"
	"github.com/saviobatista/ytla-corr/internal/parser"
	"github.com/saviobatista/ytla-corr/internal/sefd"
	"github.com/saviobatista/ytla-corr/internal/storage"
	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
)

// DefaultFlagFile is the antenna flag file looked up in the working directory
const DefaultFlagFile = "ant_flag.config"

// SEFDRequest names the inputs of one SEFD solve
type SEFDRequest struct {
	ArchivePath     string
	TimingPath      string
	FluxJy          float64
	IntegrationTime float64
	// FlagPath is the antenna flag file; when it does not exist every
	// antenna is good
	FlagPath string
	// ReportDir receives the per-patch diagnostics, one subdirectory per
	// sideband
	ReportDir string
	Method    sefd.RMSMethod
}

// SolveSEFD solves every interior patch of both sidebands of a tracking
// observation. It writes one log per sideband next to the archive and a
// diagnostic report per patch under ReportDir.
func (r *Runner) SolveSEFD(ctx context.Context, req SEFDRequest) ([]types.SEFDRecord, error) {
	for _, p := range []string{req.ArchivePath, req.TimingPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("error opening %s: %w", p, err)
		}
	}

	fd, err := os.Open(req.TimingPath)
	if err != nil {
		return nil, err
	}
	patches, err := parser.ParsePatches(fd)
	fd.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", req.TimingPath, err)
	}
	log.Printf("npatch = %d", len(patches))

	a, err := oneh5.Load(req.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", req.ArchivePath, err)
	}
	good, err := loadFlags(req.FlagPath, a.Antennas)
	if err != nil {
		return nil, err
	}
	bls := vis.Baselines(a.Antennas)
	for s := 0; s < vis.Sidebands; s++ {
		for b, bl := range bls {
			if a.MissingCross[s*a.Baselines+b] && good[bl.I] && good[bl.J] {
				log.Printf("Warning: %s baseline %s was missing at merge, excluded from solve", types.SidebandNames[s], bl)
			}
		}
	}

	start := time.Now()
	chr := r.Config.SEFDChannels
	if !chr.Valid(a.Channels) {
		log.Printf("Warning: invalid SEFD channel range [%d, %d), using [0, %d)", chr.Min, chr.Max, a.Channels)
		chr.Min, chr.Max = 0, a.Channels
	}
	avg, err := a.ChannelAverage(chr.Min, chr.Max)
	if err != nil {
		return nil, err
	}

	params := sefd.Params{
		FluxJy:          req.FluxJy,
		IntegrationTime: req.IntegrationTime,
		BandwidthHz:     r.Config.BandwidthHz,
		Method:          req.Method,
	}
	rel := a.RelativeTime()
	runID := filepath.Base(req.ArchivePath)
	logs := storage.New(filepath.Dir(req.ArchivePath), false)

	var all []types.SEFDRecord
	for s := 0; s < vis.Sidebands; s++ {
		sb := types.SidebandNames[s]
		records, err := sefd.Solve(avg[s*a.Baselines:(s+1)*a.Baselines], rel, patches, good, params)
		if err != nil {
			return nil, fmt.Errorf("failed to solve %s: %w", sb, err)
		}
		solvedAt := time.Now().UTC()
		for i := range records {
			records[i].RunID = runID
			records[i].Source = req.ArchivePath
			records[i].Sideband = sb
			records[i].SolvedAt = solvedAt
			r.Stats.IncrementPatchesSolved()
			log.Printf("%s patch %d SEFD (Jy): %.3e", sb, records[i].Patch, records[i].SEFD)
		}
		for i := 0; i < len(patches)-2-len(records); i++ {
			r.Stats.IncrementPatchesSkipped()
		}

		name := sefd.LogName(filepath.Base(req.ArchivePath), s)
		if err := logs.WriteText(name, func(w io.Writer) error {
			return sefd.WriteLog(w, a.Antennas, records)
		}); err != nil {
			return nil, fmt.Errorf("failed to write SEFD log: %w", err)
		}

		if req.ReportDir != "" {
			reports := storage.New(filepath.Join(req.ReportDir, sb), false)
			for _, rec := range records {
				if err := reports.WriteText(sefd.ReportName(rec.Patch), func(w io.Writer) error {
					return sefd.WriteReport(w, rec)
				}); err != nil {
					return nil, fmt.Errorf("failed to write patch report: %w", err)
				}
			}
		}
		all = append(all, records...)
	}
	r.Stats.AddProcessingTime(time.Since(start))

	r.Services.RecordSEFD(ctx, all)
	return all, nil
}

// loadFlags reads the antenna flag file; a missing file flags nothing
func loadFlags(path string, na int) ([]bool, error) {
	if path == "" {
		return parser.AllGood(na), nil
	}
	fd, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return parser.AllGood(na), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening flag config %s (delete the file if it is not needed): %w", path, err)
	}
	defer fd.Close()

	good, err := parser.ParseAntennaFlags(fd, na)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return good, nil
}
