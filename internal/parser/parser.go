package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/saviobatista/ytla-corr/internal/types"
)

// ErrEmptyInput is returned when a text input holds no data rows
var ErrEmptyInput = errors.New("parser: no data rows")

// CalibratorKind selects where the passband comes from
type CalibratorKind int

const (
	// CalFile estimates the passband from a separate calibrator archive
	CalFile CalibratorKind = iota
	// CalNone applies a unit passband
	CalNone
	// CalSelf estimates the passband from the raw archive itself
	CalSelf
)

// ParseCalibrator interprets the calibrator argument of the calibrate command
func ParseCalibrator(arg string) CalibratorKind {
	switch arg {
	case "none", "null":
		return CalNone
	case "self":
		return CalSelf
	default:
		return CalFile
	}
}

// dataRows returns the whitespace separated fields of every non-blank,
// non-comment line
func dataRows(r io.Reader) ([][]string, error) {
	var rows [][]string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rows = append(rows, strings.Fields(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return rows, nil
}

// ParseTimestamps parses a timestamp file: one time value (seconds) per line
func ParseTimestamps(r io.Reader) ([]float64, error) {
	rows, err := dataRows(r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	times := make([]float64, len(rows))
	for i, fields := range rows {
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp on row %d: %w", i+1, err)
		}
		times[i] = t
	}
	return times, nil
}

// ParsePatches parses a schedule timing file. The first two columns of each
// row are the on and off times of a patch; further columns are ignored.
func ParsePatches(r io.Reader) ([]types.Patch, error) {
	rows, err := dataRows(r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	patches := make([]types.Patch, len(rows))
	for i, fields := range rows {
		if len(fields) < 2 {
			return nil, fmt.Errorf("invalid patch on row %d: expected at least 2 fields, got %d", i+1, len(fields))
		}
		on, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid patch on time on row %d: %w", i+1, err)
		}
		off, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid patch off time on row %d: %w", i+1, err)
		}
		patches[i] = types.Patch{On: on, Off: off}
	}
	return patches, nil
}

// ParseAntennaFlags parses an antenna flag file: na numbers, non-zero for a
// working antenna. Values may span several lines.
func ParseAntennaFlags(r io.Reader, na int) ([]bool, error) {
	rows, err := dataRows(r)
	if err != nil {
		return nil, err
	}

	var good []bool
	for _, fields := range rows {
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid antenna flag %q: %w", f, err)
			}
			good = append(good, v != 0)
		}
	}
	if len(good) == 0 {
		return nil, ErrEmptyInput
	}
	if len(good) != na {
		return nil, fmt.Errorf("expected %d antenna flags, got %d", na, len(good))
	}
	return good, nil
}

// AllGood returns a flag vector with every antenna working
func AllGood(na int) []bool {
	good := make([]bool, na)
	for i := range good {
		good[i] = true
	}
	return good
}
