package types

import (
	"time"
)

// Sideband names, in archive order
var SidebandNames = [2]string{"lsb", "usb"}

// Patch is a labeled time window of a tracking observation, in seconds
// relative to the first timestamp
type Patch struct {
	On  float64 `json:"on"`
	Off float64 `json:"off"`
}

// Midpoint returns the center of the patch
func (p Patch) Midpoint() float64 {
	return (p.On + p.Off) / 2.
}

// Contains reports whether t falls inside the patch (inclusive)
func (p Patch) Contains(t float64) bool {
	return t >= p.On && t <= p.Off
}

// CalibrationRun describes one passband calibration of a raw archive
type CalibrationRun struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	RawPath       string    `json:"raw_path"`
	CalSource     string    `json:"cal_source"`
	OutputPath    string    `json:"output_path"`
	PhaseCal      bool      `json:"phase_cal"`
	GainCal       bool      `json:"gain_cal"`
	FluxJy        float64   `json:"flux_jy"`
	ChMin         int       `json:"ch_min"`
	ChMax         int       `json:"ch_max"`
	Sigma         float64   `json:"sigma"`
	Samples       int       `json:"samples"`
	MissingSlices int       `json:"missing_slices"`
}

// SEFDRecord is the per-antenna SEFD solution of one patch
type SEFDRecord struct {
	RunID    string    `json:"run_id"`
	Source   string    `json:"source"`
	Sideband string    `json:"sideband"`
	Patch    int       `json:"patch"`
	Midpoint float64   `json:"midpoint"`
	Peak     []float64 `json:"peak"`
	SEFD     []float64 `json:"sefd"`
	Power    []float64 `json:"power"`
	Residual []float64 `json:"residual"`
	SolvedAt time.Time `json:"solved_at"`
}

// CachedPassband is the serialized form of a passband kept in the cache
type CachedPassband struct {
	Sidebands int       `json:"nsb"`
	Baselines int       `json:"nb"`
	Channels  int       `json:"nch"`
	ChMin     int       `json:"ch_min"`
	ChMax     int       `json:"ch_max"`
	Real      []float64 `json:"real"`
	Imag      []float64 `json:"imag"`
	Norm      []float64 `json:"norm"`
}
