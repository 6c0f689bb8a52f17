package calibrate

import (
	"math/cmplx"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/saviobatista/ytla-corr/internal/bandpass"
	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/oneh5"
	"github.com/saviobatista/ytla-corr/internal/parser"
	"github.com/saviobatista/ytla-corr/internal/storage"
	"github.com/saviobatista/ytla-corr/internal/testutils"
	"github.com/saviobatista/ytla-corr/internal/vis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gainArchive(na, nch, n int) *vis.Archive {
	return testutils.GainArchive(na, nch, n, testutils.AntennaGains(na, 3), testutils.Ripple(nch))
}

func copyCross(a *vis.Archive) []complex128 {
	return append([]complex128(nil), a.Cross...)
}

func TestApply_NullPassbandLeavesCrossUnchanged(t *testing.T) {
	a := gainArchive(4, 16, 5)
	before := copyCross(a)

	require.NoError(t, Apply(a, bandpass.Unity(4, 16, 0)))
	assert.Equal(t, before, a.Cross)
}

func TestApply_DividesEverySample(t *testing.T) {
	a := gainArchive(3, 8, 4)
	before := copyCross(a)

	pb := vis.NewPassband(a.Baselines, a.Channels)
	for i := range pb.Values {
		pb.Values[i] = complex(float64(i%5)+1, -0.5)
	}

	require.NoError(t, Apply(a, pb))
	for s := 0; s < vis.Sidebands; s++ {
		for b := 0; b < a.Baselines; b++ {
			for ch := 0; ch < a.Channels; ch++ {
				for tt := 0; tt < a.Samples; tt++ {
					i := a.CrossIndex(s, b, ch, tt)
					assert.Equal(t, before[i]/pb.At(s, b, ch), a.Cross[i])
				}
			}
		}
	}
}

func TestApply_SelfCalibrationFlattens(t *testing.T) {
	cfg := config.Default()
	a := gainArchive(4, 64, 6)
	opts := bandpass.DefaultOptions(cfg)
	opts.ChMin, opts.ChMax = 4, 60

	pb, err := bandpass.Estimate(a, opts)
	require.NoError(t, err)
	require.NoError(t, Apply(a, pb))

	for s := 0; s < vis.Sidebands; s++ {
		for b := 0; b < a.Baselines; b++ {
			for ch := 0; ch < a.Channels; ch++ {
				v := a.CrossAt(s, b, ch, 3)
				assert.InDelta(t, pb.NormAt(s, b), cmplx.Abs(v), 1e-9)
				assert.InDelta(t, 0, cmplx.Phase(v), 1e-9)
			}
		}
	}
}

func TestApply_ShapeMismatch(t *testing.T) {
	a := gainArchive(4, 16, 2)
	err := Apply(a, bandpass.Unity(3, 16, 0))
	assert.ErrorIs(t, err, vis.ErrShapeMismatch)

	err = Apply(a, bandpass.Unity(4, 8, 0))
	assert.ErrorIs(t, err, vis.ErrShapeMismatch)
}

func TestWriteCalibrated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.self.pg.cal.oneh5")
	a := gainArchive(3, 8, 4)
	pb, err := bandpass.Estimate(a, bandpass.Options{ChMin: 1, ChMax: 7, PhaseCal: true, GainCal: true})
	require.NoError(t, err)
	require.NoError(t, Apply(a, pb))

	prov := Provenance{Source: "self", PhaseCal: true, GainCal: true, RunID: "run-1"}
	require.NoError(t, WriteCalibrated(path, a, pb, prov))

	got, err := oneh5.Load(path)
	require.NoError(t, err)
	assert.Equal(t, a.Cross, got.Cross)

	read, err := oneh5.ReadPassband(path)
	require.NoError(t, err)
	assert.Equal(t, pb.Values, read.Values)
	assert.Equal(t, pb.Norm, read.Norm)
	assert.Equal(t, 1, read.ChMin)
	assert.Equal(t, 7, read.ChMax)
}

func TestChannelAveragedAmplitudes(t *testing.T) {
	a := testutils.NewArchive(3, 4, 2, 1, func(_ int, bl vis.Baseline, ch, tt int) complex128 {
		return complex(0, float64(ch+bl.J+tt))
	})

	amps, err := ChannelAveragedAmplitudes(a, 1, 3)
	require.NoError(t, err)
	require.Len(t, amps, vis.Sidebands*a.Baselines)

	// baseline 02: channels 1 and 2 give 3+t and 4+t
	assert.InDelta(t, 3.5, amps[1][0], 1e-12)
	assert.InDelta(t, 4.5, amps[1][1], 1e-12)

	_, err = ChannelAveragedAmplitudes(a, 3, 3)
	assert.ErrorIs(t, err, vis.ErrChannelRange)
}

func TestExportASCII(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ascii.null")
	store := storage.New(dir, false)
	a := testutils.NewArchive(3, 4, 3, 1, func(s int, bl vis.Baseline, _ int, tt int) complex128 {
		return complex(float64(s*100+bl.I*10+bl.J+tt), 0)
	})

	require.NoError(t, ExportASCII(store, "obs", a, 0, 4))
	assert.Equal(t, 6, store.Written())

	content, err := os.ReadFile(filepath.Join(dir, "obs.12.usb_time")) // #nosec G304 - controlled test path
	require.NoError(t, err)

	lines := strings.Fields(string(content))
	require.Len(t, lines, 3)
	for tt, line := range lines {
		v, err := strconv.ParseFloat(line, 64)
		require.NoError(t, err)
		assert.Equal(t, float64(112+tt), v)
	}
}

func TestSeriesName(t *testing.T) {
	assert.Equal(t, "obs.03.lsb_time", SeriesName("obs", vis.Baseline{I: 0, J: 3}, 0))
	assert.Equal(t, "obs.56.usb_time", SeriesName("obs", vis.Baseline{I: 5, J: 6}, 1))
}

func TestOutputPaths(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		outDir   string
		kind     parser.CalibratorKind
		p, g     bool
		archive  string
		asciiDir string
	}{
		{
			name: "file calibrator", raw: "/d/obs.raw.oneh5", kind: parser.CalFile, p: true, g: true,
			archive: "/d/obs.pg.cal.oneh5", asciiDir: "/d/ascii.pg",
		},
		{
			name: "self phase only", raw: "/d/obs.raw.oneh5", kind: parser.CalSelf, p: true,
			archive: "/d/obs.self.p.cal.oneh5", asciiDir: "/d/ascii.self.p",
		},
		{
			name: "null no tags", raw: "/d/obs.raw.oneh5", kind: parser.CalNone,
			archive: "/d/obs.null.cal.oneh5", asciiDir: "/d/ascii.null",
		},
		{
			// a trailing "w" must survive; only the .raw suffix is removed
			name: "base ending in suffix letters", raw: "/d/snow.raw.oneh5", kind: parser.CalFile, g: true,
			archive: "/d/snow.g.cal.oneh5", asciiDir: "/d/ascii.g",
		},
		{
			name: "no raw suffix and output dir", raw: "obs.oneh5", outDir: "/out", kind: parser.CalSelf, p: true, g: true,
			archive: "/out/obs.self.pg.cal.oneh5", asciiDir: "/out/ascii.self.pg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := OutputPaths(tt.raw, tt.outDir, tt.kind, tt.p, tt.g)
			assert.Equal(t, tt.archive, out.Archive)
			assert.Equal(t, tt.asciiDir, out.ASCIIDir)
		})
	}
}

func TestRawArchivePath(t *testing.T) {
	assert.Equal(t, "/d/obs.raw.oneh5", RawArchivePath("/d/obs.timestamp"))
	assert.Equal(t, "/d/obs.timestamp", TimestampPath("/d/obs.raw.oneh5"))
	assert.Equal(t, "/d/obs.timestamp", TimestampPath(RawArchivePath("/d/obs.timestamp")))
}
