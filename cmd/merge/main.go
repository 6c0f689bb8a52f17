package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/saviobatista/ytla-corr/internal/calibrate"
	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/pipeline"
)

const usage = "usage: merge <x.timestamp|x.raw.oneh5>"

var errUsage = errors.New(usage)

func main() {
	if err := runMerge(os.Args[1:]); err != nil {
		log.Printf("Merge failed: %v", err)
		os.Exit(1)
	}
}

// runMerge contains the main application logic and can be tested
func runMerge(args []string) error {
	ts, out, err := parseArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.OutputDir != "" {
		out = filepath.Join(cfg.OutputDir, filepath.Base(out))
	}

	ctx := context.Background()
	services := pipeline.Connect(ctx, *cfg)
	defer services.Close()

	runner := pipeline.NewRunner(*cfg, services, "merge")
	if _, err := runner.Merge(ts, out); err != nil {
		return err
	}
	services.RecordStats(ctx, runner.Stats)
	return nil
}

// parseArgs returns the timestamp file and the raw archive to write. A raw
// archive argument is mapped back to its timestamp file.
func parseArgs(args []string) (string, string, error) {
	if len(args) != 1 {
		return "", "", errUsage
	}
	arg := args[0]
	if strings.HasSuffix(arg, ".raw.oneh5") {
		return calibrate.TimestampPath(arg), arg, nil
	}
	return arg, calibrate.RawArchivePath(arg), nil
}
