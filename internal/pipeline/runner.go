package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/saviobatista/ytla-corr/internal/bandpass"
	"github.com/saviobatista/ytla-corr/internal/calibrate"
	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/oneh5"
	"github.com/saviobatista/ytla-corr/internal/parser"
	"github.com/saviobatista/ytla-corr/internal/redis"
	"github.com/saviobatista/ytla-corr/internal/stats"
	"github.com/saviobatista/ytla-corr/internal/storage"
	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
)

// Runner executes pipeline steps with one configuration
type Runner struct {
	Config   config.Config
	Services *Services
	Stats    *stats.Stats
}

// NewRunner creates a runner counting into a fresh Stats for command
func NewRunner(cfg config.Config, services *Services, command string) *Runner {
	if services == nil {
		services = &Services{}
	}
	return &Runner{
		Config:   cfg,
		Services: services,
		Stats:    stats.New(command),
	}
}

// Merge consolidates the per-baseline files of the observation described by
// timestampPath into out and returns the assembled archive
func (r *Runner) Merge(timestampPath, out string) (*vis.Archive, error) {
	start := time.Now()
	defer func() { r.Stats.AddProcessingTime(time.Since(start)) }()

	log.Printf("converting from timestamp file %s", timestampPath)
	a, rs, err := oneh5.LoadRaw(timestampPath, r.Config.Antennas, r.Config.Channels, r.Config.StrictRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to merge %s: %w", timestampPath, err)
	}
	r.Stats.AddFilesRead(rs.FilesRead)
	r.Stats.AddFilesMissing(rs.FilesMissing)

	if err := oneh5.Save(out, a); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", out, err)
	}
	log.Printf("saved raw archive %s (%d samples)", out, a.Samples)
	return a, nil
}

// CalibrateRequest names the inputs of one calibration
type CalibrateRequest struct {
	// RawPath is the consolidated raw archive
	RawPath string
	// Calibrator is a calibrator archive path or none, null or self
	Calibrator string
	Options    bandpass.Options
}

// Calibrate derives the passband, applies it to the raw archive and writes
// the calibrated archive and its ASCII series. Missing inputs are reported
// before any output is written. A raw archive that does not exist yet is
// merged from its timestamp file first.
func (r *Runner) Calibrate(ctx context.Context, req CalibrateRequest) (*types.CalibrationRun, error) {
	run := &types.CalibrationRun{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		RawPath:   req.RawPath,
		CalSource: req.Calibrator,
		PhaseCal:  req.Options.PhaseCal,
		GainCal:   req.Options.GainCal,
		FluxJy:    req.Options.FluxJy,
		Sigma:     req.Options.Sigma,
	}

	kind := parser.ParseCalibrator(req.Calibrator)
	if kind == parser.CalFile {
		if _, err := os.Stat(req.Calibrator); err != nil {
			return nil, fmt.Errorf("error finding cal data %s: %w", req.Calibrator, err)
		}
		log.Printf("using cal data: %s", req.Calibrator)
	}

	raw, err := r.loadRaw(req.RawPath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pb, err := r.passband(ctx, kind, req, raw)
	if err != nil {
		return nil, err
	}

	if err := calibrate.Apply(raw, pb); err != nil {
		return nil, fmt.Errorf("failed to apply passband: %w", err)
	}
	r.Stats.AddSamplesCalibrated(raw.Samples)

	out := calibrate.OutputPaths(req.RawPath, r.Config.OutputDir, kind, req.Options.PhaseCal, req.Options.GainCal)
	prov := calibrate.Provenance{
		Source:   req.Calibrator,
		PhaseCal: req.Options.PhaseCal,
		GainCal:  req.Options.GainCal,
		RunID:    run.RunID,
	}
	if err := calibrate.WriteCalibrated(out.Archive, raw, pb, prov); err != nil {
		return nil, err
	}

	store := storage.New(out.ASCIIDir, r.Config.CompressASCII)
	if err := calibrate.ExportASCII(store, out.Base, raw, pb.ChMin, pb.ChMax); err != nil {
		return nil, fmt.Errorf("failed to export ascii series: %w", err)
	}
	r.Stats.AddProcessingTime(time.Since(start))

	run.OutputPath = out.Archive
	run.ChMin, run.ChMax = pb.ChMin, pb.ChMax
	run.Samples = raw.Samples
	run.MissingSlices = raw.MissingCount()
	run.FinishedAt = time.Now().UTC()
	r.Services.RecordCalibration(ctx, run)

	log.Println("done.")
	return run, nil
}

// loadRaw loads the raw archive, merging it from its timestamp file when
// only the per-baseline files exist
func (r *Runner) loadRaw(path string) (*vis.Archive, error) {
	if _, err := os.Stat(path); err == nil {
		log.Printf("using raw data: %s", path)
		a, err := oneh5.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load raw data: %w", err)
		}
		return a, nil
	}

	log.Printf("error finding raw data: %s", path)
	ts := calibrate.TimestampPath(path)
	if _, err := os.Stat(ts); err != nil {
		return nil, fmt.Errorf("raw data %s not found and no timestamp file %s", path, ts)
	}
	return r.Merge(ts, path)
}

// passband derives the passband for the calibrator kind. File calibrators
// go through the passband cache.
func (r *Runner) passband(ctx context.Context, kind parser.CalibratorKind, req CalibrateRequest, raw *vis.Archive) (*vis.Passband, error) {
	opts := req.Options
	switch kind {
	case parser.CalNone:
		pb := bandpass.Unity(raw.Antennas, raw.Channels, opts.FluxJy)
		pb.ChMin, pb.ChMax = opts.ChannelWindow(raw.Channels)
		return pb, nil

	case parser.CalSelf:
		pb, err := bandpass.Estimate(raw, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to derive passband from %s: %w", req.RawPath, err)
		}
		return pb, nil
	}

	abs, err := filepath.Abs(req.Calibrator)
	if err != nil {
		abs = req.Calibrator
	}
	info, err := os.Stat(req.Calibrator)
	if err != nil {
		return nil, fmt.Errorf("failed to stat calibrator %s: %w", req.Calibrator, err)
	}
	key := redis.PassbandKey(abs, info.Size(), info.ModTime(), opts.Fingerprint())
	pb, err := r.Services.Passband(ctx, key, func() (*vis.Passband, error) {
		cal, err := oneh5.Load(req.Calibrator)
		if err != nil {
			return nil, fmt.Errorf("failed to load cal data: %w", err)
		}
		return bandpass.Estimate(cal, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to derive passband from %s: %w", req.Calibrator, err)
	}
	return pb, nil
}
