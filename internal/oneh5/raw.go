package oneh5

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/saviobatista/ytla-corr/internal/parser"
	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
	"gonum.org/v1/hdf5"
)

const (
	timestampSuffix = ".timestamp"
	rawRealPath     = "fullData/real"
	rawImagPath     = "fullData/imag"
)

// RawLoadStats counts the per-baseline files visited by LoadRaw
type RawLoadStats struct {
	FilesRead    int
	FilesMissing int
}

// BaselineFile returns the per-baseline file name for a pair, sideband and
// correlation kind ("auto" or "cross"), e.g. <dir>/<base>.03.lsb.cross.h5
func BaselineFile(dir, base string, i, j, sideband int, kind string) string {
	name := fmt.Sprintf("%s.%d%d.%s.%s.h5", base, i, j, types.SidebandNames[sideband], kind)
	return filepath.Join(dir, name)
}

// RawBase splits a timestamp file path into its directory and file base
func RawBase(timestampPath string) (string, string) {
	dir := filepath.Dir(timestampPath)
	name := filepath.Base(timestampPath)
	if strings.HasSuffix(name, timestampSuffix) {
		return dir, strings.TrimSuffix(name, timestampSuffix)
	}
	log.Printf("Warning: non-standard <timestamp> filename detected: %s", name)
	return dir, name
}

// LoadRaw assembles an archive from a timestamp file and the per-baseline
// files next to it. A missing or unreadable per-baseline file leaves its
// slice zero and is flagged in the archive's missing bitmap; with strict set
// it aborts the load instead. Only an unreadable timestamp series is fatal
// otherwise.
func LoadRaw(timestampPath string, na, nch int, strict bool) (*vis.Archive, RawLoadStats, error) {
	var stats RawLoadStats

	fd, err := os.Open(timestampPath)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrMissingTimestamps, err)
	}
	times, err := parser.ParseTimestamps(fd)
	fd.Close()
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrMissingTimestamps, err)
	}

	dir, base := RawBase(timestampPath)
	a := vis.New(na, nch, len(times))
	copy(a.Timestamps, times)

	for s := 0; s < vis.Sidebands; s++ {
		b := -1
		for i := 0; i < na; i++ {
			name := BaselineFile(dir, base, i, i, s, "auto")
			if err := readRawAuto(a, name, s, i); err != nil {
				if strict {
					return nil, stats, fmt.Errorf("%w: %s: %v", ErrMissingSlice, name, err)
				}
				log.Printf("Warning: missing auto-correlation %s, slice left empty: %v", name, err)
				a.MissingAuto[s*na+i] = true
				stats.FilesMissing++
			} else {
				stats.FilesRead++
			}

			for j := i + 1; j < na; j++ {
				b++
				name := BaselineFile(dir, base, i, j, s, "cross")
				if err := readRawCross(a, name, s, b); err != nil {
					if strict {
						return nil, stats, fmt.Errorf("%w: %s: %v", ErrMissingSlice, name, err)
					}
					log.Printf("Warning: missing cross-correlation %s, slice left empty: %v", name, err)
					a.MissingCross[s*a.Baselines+b] = true
					stats.FilesMissing++
				} else {
					stats.FilesRead++
				}
			}
		}
	}

	if stats.FilesMissing > 0 {
		log.Printf("Warning: %d of %d per-baseline files missing under %s",
			stats.FilesMissing, stats.FilesMissing+stats.FilesRead, dir)
	}
	return a, stats, nil
}

// readRawMatrix reads a channel x time matrix and checks its shape
func readRawMatrix(f *hdf5.File, path string, nch, n int) ([]float64, error) {
	data, dims, err := readFloat(f, path)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 || int(dims[0]) != nch || int(dims[1]) != n {
		return nil, fmt.Errorf("%w: %s is %v, expected [%d %d]", vis.ErrShapeMismatch, path, dims, nch, n)
	}
	return data, nil
}

func readRawAuto(a *vis.Archive, name string, s, ant int) error {
	if _, err := os.Stat(name); err != nil {
		return err
	}
	f, err := hdf5.OpenFile(name, hdf5.F_ACC_RDONLY)
	if err != nil {
		return err
	}
	defer f.Close()

	re, err := readRawMatrix(f, rawRealPath, a.Channels, a.Samples)
	if err != nil {
		return err
	}
	copy(a.Auto[a.AutoIndex(s, ant, 0, 0):], re)
	return nil
}

func readRawCross(a *vis.Archive, name string, s, b int) error {
	if _, err := os.Stat(name); err != nil {
		return err
	}
	f, err := hdf5.OpenFile(name, hdf5.F_ACC_RDONLY)
	if err != nil {
		return err
	}
	defer f.Close()

	re, err := readRawMatrix(f, rawRealPath, a.Channels, a.Samples)
	if err != nil {
		return err
	}
	im, err := readRawMatrix(f, rawImagPath, a.Channels, a.Samples)
	if err != nil {
		return err
	}

	dst := a.Cross[a.CrossIndex(s, b, 0, 0) : a.CrossIndex(s, b, 0, 0)+a.Channels*a.Samples]
	for k := range dst {
		dst[k] = complex(re[k], im[k])
	}
	return nil
}
