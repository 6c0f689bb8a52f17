package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/saviobatista/ytla-corr/internal/bandpass"
	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/pipeline"
)

const usage = `usage: calibrate <raw_oneh5_file> <cal_oneh5_file|none|null|self> [options]

loads raw data and a calibration data set and performs bandpass calibration;
the output is the calibrated archive and the channel-averaged amplitude of
every baseline as a function of time

	-(no)pcal	toggle phase calibration (default on)
	-(no)gcal	toggle gain calibration (default on)
	-fcal flux_jy	normalize to flux in Jy
	-caltr t1 t2	limit the calibrator time range to [t1, t2]
	-calcr c1 c2	normalize the bandpass between channels [c1, c2)
	-filter sigma	sigma for Gaussian spectral filtering in channels`

var errUsage = errors.New(usage)

func main() {
	if err := runCalibrate(os.Args[1:]); err != nil {
		log.Printf("Calibrate failed: %v", err)
		os.Exit(1)
	}
}

// runCalibrate contains the main application logic and can be tested
func runCalibrate(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	req, err := parseArgs(args, bandpass.DefaultOptions(*cfg))
	if err != nil {
		return err
	}

	ctx := context.Background()
	services := pipeline.Connect(ctx, *cfg)
	defer services.Close()

	runner := pipeline.NewRunner(*cfg, services, "calibrate")
	run, err := runner.Calibrate(ctx, req)
	if err != nil {
		return err
	}
	log.Printf("run %s: %s", run.RunID, run.OutputPath)
	services.RecordStats(ctx, runner.Stats)
	return nil
}

// parseArgs scans the command line the way the flags are documented in
// usage: options may appear anywhere, range options take two values and
// malformed option values are ignored with a warning
func parseArgs(args []string, opts bandpass.Options) (pipeline.CalibrateRequest, error) {
	req := pipeline.CalibrateRequest{Options: opts}
	var positional []string

	next := func(i *int, name string) (string, error) {
		*i++
		if *i >= len(args) {
			return "", fmt.Errorf("%s requires a value\n%w", name, errUsage)
		}
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-pcal":
			req.Options.PhaseCal = true
		case "-nopcal":
			req.Options.PhaseCal = false
		case "-gcal":
			req.Options.GainCal = true
		case "-nogcal":
			req.Options.GainCal = false

		case "-fcal":
			v, err := next(&i, arg)
			if err != nil {
				return req, err
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				log.Printf("Warning: error getting flux %q, ignoring flux cal", v)
				continue
			}
			req.Options.FluxJy = f

		case "-caltr":
			v1, err := next(&i, arg)
			if err != nil {
				return req, err
			}
			v2, err := next(&i, arg)
			if err != nil {
				return req, err
			}
			t1, err1 := strconv.ParseFloat(v1, 64)
			t2, err2 := strconv.ParseFloat(v2, 64)
			if err1 != nil || err2 != nil {
				log.Printf("Warning: cal time range error %q %q", v1, v2)
				continue
			}
			if t1 < t2 {
				req.Options.TimeWindow = &[2]float64{t1, t2}
			}

		case "-calcr":
			v1, err := next(&i, arg)
			if err != nil {
				return req, err
			}
			v2, err := next(&i, arg)
			if err != nil {
				return req, err
			}
			c1, err1 := strconv.Atoi(v1)
			c2, err2 := strconv.Atoi(v2)
			if err1 != nil || err2 != nil {
				log.Printf("Warning: cal channel range error %q %q, fall back to default range", v1, v2)
				continue
			}
			if c1 < c2 {
				req.Options.ChMin, req.Options.ChMax = c1, c2
			}

		case "-filter":
			v, err := next(&i, arg)
			if err != nil {
				return req, err
			}
			sigma, err := strconv.ParseFloat(v, 64)
			if err != nil {
				log.Printf("Warning: invalid sigma %q for Gaussian spectral filter, ignore filtering", v)
				req.Options.Sigma = 0
				continue
			}
			req.Options.Sigma = sigma

		default:
			positional = append(positional, arg)
		}
	}

	if len(positional) != 2 {
		return req, errUsage
	}
	req.RawPath, req.Calibrator = positional[0], positional[1]
	return req, nil
}
