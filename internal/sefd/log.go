package sefd

import (
	"fmt"
	"io"
	"strings"

	"github.com/saviobatista/ytla-corr/internal/types"
)

// LogName returns the per-sideband SEFD log name of an archive
func LogName(archive string, sideband int) string {
	return fmt.Sprintf("%s.%s.snr", archive, types.SidebandNames[sideband])
}

// WriteLog writes the SEFD log of one sideband: a header naming the
// antennas, then one line per record with the patch midpoint and the SEFD
// of every antenna in Jy
func WriteLog(w io.Writer, na int, records []types.SEFDRecord) error {
	var hdr strings.Builder
	hdr.WriteString("#t, SEFD(Jy:")
	for i := 0; i < na; i++ {
		fmt.Fprintf(&hdr, " ant%d", i)
	}
	hdr.WriteString(")\n")
	if _, err := io.WriteString(w, hdr.String()); err != nil {
		return err
	}

	for _, rec := range records {
		if len(rec.SEFD) != na {
			return fmt.Errorf("patch %d has %d SEFD values, expected %d", rec.Patch, len(rec.SEFD), na)
		}
		var line strings.Builder
		fmt.Fprintf(&line, "%.1f ", rec.Midpoint)
		for _, v := range rec.SEFD {
			fmt.Fprintf(&line, "%.3e  ", v)
		}
		line.WriteByte('\n')
		if _, err := io.WriteString(w, line.String()); err != nil {
			return err
		}
	}
	return nil
}

// ReportName returns the diagnostic report name of a patch
func ReportName(patch int) string {
	return fmt.Sprintf("result.patch_%02d", patch)
}

// WriteReport writes the intermediate quantities of one patch solve
func WriteReport(w io.Writer, rec types.SEFDRecord) error {
	sections := []struct {
		title  string
		values []float64
	}{
		{"peak power (corrected for misalignment attenuation) <-- per baseline", rec.Peak},
		{"residual R = D - A dot X", rec.Residual},
		{"antenna power P = exp(X)", rec.Power},
		{"SEFD (Jy)", rec.SEFD},
	}
	for _, sec := range sections {
		if _, err := fmt.Fprintf(w, "%s\n", sec.title); err != nil {
			return err
		}
		for _, v := range sec.values {
			if _, err := fmt.Fprintf(w, "%.3e  ", v); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprint(w, "\n\n"); err != nil {
			return err
		}
	}
	return nil
}
