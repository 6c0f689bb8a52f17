package vis

import "fmt"

// Baseline is an antenna pair with I < J
type Baseline struct {
	I, J int
}

// String returns the two-digit pair label used in file names, e.g. "03"
func (b Baseline) String() string {
	return fmt.Sprintf("%d%d", b.I, b.J)
}

// BaselineCount returns na*(na-1)/2
func BaselineCount(na int) int {
	return na * (na - 1) / 2
}

// Baselines lists the antenna pairs of an na-element array in archive order:
// i = 0..na-2, j = i+1..na-1
func Baselines(na int) []Baseline {
	out := make([]Baseline, 0, BaselineCount(na))
	for i := 0; i < na-1; i++ {
		for j := i + 1; j < na; j++ {
			out = append(out, Baseline{I: i, J: j})
		}
	}
	return out
}

// BaselineIndex returns the archive index of pair (i, j). The order of i and
// j does not matter; -1 is returned for i == j or out-of-range antennas.
func BaselineIndex(i, j, na int) int {
	if i > j {
		i, j = j, i
	}
	if i < 0 || j >= na || i == j {
		return -1
	}
	// sum_{k<i} (na-1-k) + (j-i-1)
	return i*(2*na-i-1)/2 + (j - i - 1)
}
