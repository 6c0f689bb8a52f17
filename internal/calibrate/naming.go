package calibrate

import (
	"path/filepath"
	"strings"

	"github.com/saviobatista/ytla-corr/internal/parser"
)

const (
	archiveSuffix = ".oneh5"
	rawSuffix     = ".raw"
)

// Output names the files produced by calibrating one raw archive
type Output struct {
	// Base is the raw file name without .oneh5 and .raw
	Base string
	// Archive is the calibrated archive path
	Archive string
	// ASCIIDir holds the channel-averaged series
	ASCIIDir string
}

// ModeTag returns the suffix of the calibrator mode: ".null", ".self" or ""
func ModeTag(kind parser.CalibratorKind) string {
	switch kind {
	case parser.CalNone:
		return ".null"
	case parser.CalSelf:
		return ".self"
	default:
		return ""
	}
}

// CalTag returns ".p", ".g", ".pg" or "" for the enabled calibrations
func CalTag(phaseCal, gainCal bool) string {
	tag := ""
	if phaseCal {
		tag += "p"
	}
	if gainCal {
		tag += "g"
	}
	if tag == "" {
		return ""
	}
	return "." + tag
}

// OutputPaths derives the calibrated archive and ASCII directory from the
// raw archive path, e.g. dir/obs.raw.oneh5 calibrated against itself with
// phase and gain yields dir/obs.self.pg.cal.oneh5 and dir/ascii.self.pg.
// A non-empty outDir replaces the raw file's directory.
func OutputPaths(rawPath, outDir string, kind parser.CalibratorKind, phaseCal, gainCal bool) Output {
	dir := filepath.Dir(rawPath)
	if outDir != "" {
		dir = outDir
	}

	base := strings.TrimSuffix(filepath.Base(rawPath), archiveSuffix)
	base = strings.TrimSuffix(base, rawSuffix)

	tags := ModeTag(kind) + CalTag(phaseCal, gainCal)
	return Output{
		Base:     base,
		Archive:  filepath.Join(dir, base+tags+".cal"+archiveSuffix),
		ASCIIDir: filepath.Join(dir, "ascii"+tags),
	}
}

// RawArchivePath returns the consolidated raw archive path for a timestamp
// file, dir/<base>.timestamp -> dir/<base>.raw.oneh5
func RawArchivePath(timestampPath string) string {
	base := strings.TrimSuffix(timestampPath, ".timestamp")
	return base + rawSuffix + archiveSuffix
}

// TimestampPath is the inverse of RawArchivePath
func TimestampPath(rawPath string) string {
	base := strings.TrimSuffix(rawPath, archiveSuffix)
	base = strings.TrimSuffix(base, rawSuffix)
	return base + ".timestamp"
}
