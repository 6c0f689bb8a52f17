package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPatch_Midpoint(t *testing.T) {
	tests := []struct {
		name  string
		patch Patch
		want  float64
	}{
		{name: "simple", patch: Patch{On: 10, Off: 20}, want: 15},
		{name: "zero length", patch: Patch{On: 5, Off: 5}, want: 5},
		{name: "fractional", patch: Patch{On: 0, Off: 1}, want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.patch.Midpoint(); got != tt.want {
				t.Errorf("Midpoint() = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestPatch_Contains(t *testing.T) {
	p := Patch{On: 10, Off: 20}

	if !p.Contains(10) || !p.Contains(20) || !p.Contains(15) {
		t.Error("Patch bounds should be inclusive")
	}
	if p.Contains(9.999) || p.Contains(20.001) {
		t.Error("Patch should not contain samples outside its window")
	}
}

func TestSEFDRecord_JSON(t *testing.T) {
	rec := SEFDRecord{
		RunID:    "run-1",
		Source:   "jupiter.oneh5",
		Sideband: "lsb",
		Patch:    3,
		Midpoint: 125.5,
		SEFD:     []float64{1e5, 2e5},
		SolvedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, key := range []string{"run_id", "source", "sideband", "patch", "midpoint", "sefd", "solved_at"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Expected JSON field %q", key)
		}
	}
}

func TestSidebandNames(t *testing.T) {
	if SidebandNames[0] != "lsb" || SidebandNames[1] != "usb" {
		t.Errorf("Unexpected sideband order %v", SidebandNames)
	}
}
