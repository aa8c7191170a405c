// Package snapper maps noisy numeric readings onto a fixed set of valid values.
package snapper

import (
	"fmt"
	"math"
)

// Snap returns the entry of valid closest to raw. On an exact tie the earlier
// entry wins. An empty table is a caller error and panics.
func Snap(raw float64, valid []float64) float64 {
	if len(valid) == 0 {
		panic(fmt.Sprintf("snapper: no valid values to snap %v to", raw))
	}
	best := valid[0]
	bestDist := math.Abs(best - raw)
	for _, v := range valid[1:] {
		if d := math.Abs(v - raw); d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

// SnapInt is Snap for integer breakpoints such as level steps.
func SnapInt(raw int, valid []int) int {
	if len(valid) == 0 {
		panic(fmt.Sprintf("snapper: no valid values to snap %d to", raw))
	}
	best := valid[0]
	bestDist := abs(best - raw)
	for _, v := range valid[1:] {
		if d := abs(v - raw); d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

// TrySnap is Snap that reports false instead of panicking on an empty table.
func TrySnap(raw float64, valid []float64) (float64, bool) {
	if len(valid) == 0 {
		return 0, false
	}
	return Snap(raw, valid), true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Level breakpoints used by the build editor sliders.
var (
	CharacterLevels = []int{1, 20, 40, 50, 60, 70, 80, 90}
	EchoLevels      = []int{0, 5, 10, 15, 20, 25}
)
