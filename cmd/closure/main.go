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
)

const usage = `usage: closure <oneh5_file> [options]

writes the closure phase of every antenna triangle as ASCII series

	-chr chmin chmax	override the channel range for averaging
	-tr tmin tmax		limit the samples to [tmin, tmax] seconds
	-o dir			output directory (default <dir of oneh5_file>/closure)`

var errUsage = errors.New(usage)

func main() {
	if err := runClosure(os.Args[1:]); err != nil {
		log.Printf("Closure failed: %v", err)
		os.Exit(1)
	}
}

// runClosure contains the main application logic and can be tested
func runClosure(args []string) error {
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

	runner := pipeline.NewRunner(*cfg, services, "closure")
	res, err := runner.Closure(ctx, req)
	if err != nil {
		return err
	}
	log.Printf("%d triangles, %d samples", len(res.Triangles), res.Samples)
	services.RecordStats(ctx, runner.Stats)
	return nil
}

// parseArgs reads the archive path and the optional ranges. Unreadable or
// negative ranges are ignored with a warning.
func parseArgs(args []string) (pipeline.ClosureRequest, error) {
	var req pipeline.ClosureRequest

	pair := func(i int, name string) (string, string, error) {
		if i+2 >= len(args) {
			return "", "", fmt.Errorf("%s requires two values\n%w", name, errUsage)
		}
		return args[i+1], args[i+2], nil
	}

	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-chr":
			v1, v2, err := pair(i, arg)
			if err != nil {
				return req, err
			}
			i += 2
			c1, err1 := strconv.Atoi(v1)
			c2, err2 := strconv.Atoi(v2)
			if err1 != nil || err2 != nil {
				log.Printf("Warning: error reading channel range %q %q", v1, v2)
				continue
			}
			req.Channels = &config.ChannelRange{Min: c1, Max: c2}

		case "-tr":
			v1, v2, err := pair(i, arg)
			if err != nil {
				return req, err
			}
			i += 2
			t1, err1 := strconv.ParseFloat(v1, 64)
			t2, err2 := strconv.ParseFloat(v2, 64)
			if err1 != nil || err2 != nil {
				log.Printf("Warning: error reading time range %q %q", v1, v2)
				continue
			}
			if t1 < 0 {
				log.Printf("Warning: input time range invalid, using full range")
				continue
			}
			req.TimeWindow = &[2]float64{t1, t2}

		case "-o":
			if i+1 >= len(args) {
				return req, fmt.Errorf("-o requires a value\n%w", errUsage)
			}
			i++
			req.OutDir = args[i]

		default:
			if req.ArchivePath != "" {
				return req, errUsage
			}
			req.ArchivePath = arg
		}
	}

	if req.ArchivePath == "" {
		return req, errUsage
	}
	return req, nil
}
