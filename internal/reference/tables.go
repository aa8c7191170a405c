// Package reference holds the closed vocabularies that recognized text is
// resolved against: character names, weapon names per weapon type, echo names
// per cost, main-stat ranges per cost and substat roll tables.
//
// Tables are loaded once and never mutated, so they can be shared between
// goroutines freely. Every list keeps its source order; matching tie-breaks
// depend on it.
package reference

import (
	"fmt"
	"strings"
)

// CostSections is the order echo costs are searched in.
var CostSections = []int{4, 3, 1}

// WeaponGroup lists the weapons of one weapon type.
type WeaponGroup struct {
	Type  string   `json:"type"`
	Names []string `json:"names"`
}

// Range is an inclusive [Min, Max] main-stat range over echo levels 0..25.
type Range struct {
	Min float64
	Max float64
}

// At interpolates the value at an echo level.
func (r Range) At(level int) float64 {
	return r.Min + (r.Max-r.Min)*float64(level)/float64(MaxEchoLevel)
}

// MaxEchoLevel is the level at which a main stat reaches Range.Max.
const MaxEchoLevel = 25

// FixedStat is the secondary stat every echo of a cost carries.
type FixedStat struct {
	Label string
	Range Range
}

// CostStats are the main-stat options for one echo cost.
type CostStats struct {
	Default FixedStat
	labels  []string
	ranges  map[string]Range
}

// Labels returns the main-stat labels in source order.
func (c CostStats) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Range returns the value range of a main-stat label.
func (c CostStats) Range(label string) (Range, bool) {
	r, ok := c.ranges[label]
	return r, ok
}

// Tables is the full read-only reference data set.
type Tables struct {
	Characters []string
	Weapons    []WeaponGroup

	echoesByCost map[int][]string
	mainStats    map[int]CostStats

	substatNames []string
	rolls        map[string][]float64
}

// EchoNames returns echo names of one cost, or nil for an unknown cost.
func (t *Tables) EchoNames(cost int) []string {
	return append([]string(nil), t.echoesByCost[cost]...)
}

// AllEchoNames returns every echo name, preferred cost first and then the
// remaining costs in CostSections order. A preferred cost of 0 means none.
func (t *Tables) AllEchoNames(preferredCost int) []string {
	var out []string
	if names, ok := t.echoesByCost[preferredCost]; ok {
		out = append(out, names...)
	}
	for _, cost := range CostSections {
		if cost == preferredCost {
			continue
		}
		out = append(out, t.echoesByCost[cost]...)
	}
	return out
}

// MainStats returns the main-stat options for a cost.
func (t *Tables) MainStats(cost int) (CostStats, bool) {
	c, ok := t.mainStats[cost]
	return c, ok
}

// AllMainStatLabels returns the union of main-stat labels over every cost,
// without duplicates, in CostSections order.
func (t *Tables) AllMainStatLabels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, cost := range CostSections {
		for _, l := range t.mainStats[cost].labels {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out
}

// SubstatNames returns every substat name in source order.
func (t *Tables) SubstatNames() []string {
	return append([]string(nil), t.substatNames...)
}

// Rolls returns the valid roll values of a substat.
func (t *Tables) Rolls(name string) ([]float64, bool) {
	r, ok := t.rolls[name]
	return r, ok
}

// HasSubstat reports whether name has a roll table.
func (t *Tables) HasSubstat(name string) bool {
	_, ok := t.rolls[name]
	return ok
}

// Validate checks the invariants the resolvers rely on.
func (t *Tables) Validate() error {
	if len(t.Characters) == 0 {
		return fmt.Errorf("reference: no character names")
	}
	for _, g := range t.Weapons {
		if g.Type == "" || len(g.Names) == 0 {
			return fmt.Errorf("reference: weapon group %q is empty", g.Type)
		}
	}
	for cost, names := range t.echoesByCost {
		for _, n := range names {
			if strings.TrimSpace(n) == "" {
				return fmt.Errorf("reference: blank echo name for cost %d", cost)
			}
		}
	}
	for cost, cs := range t.mainStats {
		for _, l := range cs.labels {
			r := cs.ranges[l]
			if r.Min > r.Max {
				return fmt.Errorf("reference: %dcost main stat %s has min > max", cost, l)
			}
		}
	}
	for _, name := range t.substatNames {
		if len(t.rolls[name]) == 0 {
			return fmt.Errorf("reference: substat %s has an empty roll table", name)
		}
	}
	return nil
}
