package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/pipeline"
	"github.com/saviobatista/ytla-corr/internal/sefd"
)

const usage = `usage: sefd <oneh5_file> <sch_timing> <flux_jy> <tint> [-reim]

solves the antenna SEFD of every on-source patch of a tracking observation

	<oneh5_file>	calibrated or raw archive
	<sch_timing>	schedule timing file, one "on off" row per patch; the
			first and last patches are used for the noise level
	<flux_jy>	calibrator flux density in Jy
	<tint>		integration time per data point in seconds
	-reim		estimate the noise from the real and imaginary parts
			instead of the amplitude

if some antenna is not working, flag it in the config file ant_flag.config
(one 0/1 value per antenna)`

var errUsage = errors.New(usage)

func main() {
	if err := runSEFD(os.Args[1:]); err != nil {
		log.Printf("SEFD failed: %v", err)
		os.Exit(1)
	}
}

// runSEFD contains the main application logic and can be tested
func runSEFD(args []string) error {
	req, err := parseArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	services := pipeline.Connect(ctx, *cfg)
	defer services.Close()

	runner := pipeline.NewRunner(*cfg, services, "sefd")
	if _, err := runner.SolveSEFD(ctx, req); err != nil {
		return err
	}
	services.RecordStats(ctx, runner.Stats)
	return nil
}

func parseArgs(args []string) (pipeline.SEFDRequest, error) {
	req := pipeline.SEFDRequest{
		FlagPath:  pipeline.DefaultFlagFile,
		ReportDir: "snr",
		Method:    sefd.RMSMagnitude,
	}

	var positional []string
	for _, arg := range args {
		if arg == "-reim" {
			req.Method = sefd.RMSReIm
			continue
		}
		positional = append(positional, arg)
	}
	if len(positional) != 4 {
		return req, errUsage
	}

	req.ArchivePath = positional[0]
	req.TimingPath = positional[1]

	var err error
	if req.FluxJy, err = strconv.ParseFloat(positional[2], 64); err != nil {
		return req, fmt.Errorf("invalid flux %q: %w", positional[2], err)
	}
	if req.IntegrationTime, err = strconv.ParseFloat(positional[3], 64); err != nil {
		return req, fmt.Errorf("invalid integration time %q: %w", positional[3], err)
	}
	if req.FluxJy <= 0 || req.IntegrationTime <= 0 {
		return req, fmt.Errorf("flux and integration time must be positive, got %g and %g", req.FluxJy, req.IntegrationTime)
	}
	return req, nil
}
