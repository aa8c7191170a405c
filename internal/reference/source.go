package reference

import "fmt"

// Source is the plain form tables are built from, whether decoded from JSON
// or written out in code.
type Source struct {
	Characters []string
	Weapons    []WeaponGroup
	Echoes     []EchoEntry
	MainStats  []CostSource
	Substats   []SubstatSource
}

// EchoEntry is one echo name and its cost.
type EchoEntry struct {
	Name string
	Cost int
}

// CostSource holds the main stats of one cost.
type CostSource struct {
	Cost    int
	Default FixedStat
	Labels  []LabeledRange
}

// LabeledRange is one main-stat label with its value range.
type LabeledRange struct {
	Label string
	Range Range
}

// SubstatSource is one substat roll table.
type SubstatSource struct {
	Name  string
	Rolls []float64
}

// New builds and validates tables from src.
func New(src Source) (*Tables, error) {
	t := &Tables{
		Characters:   append([]string(nil), src.Characters...),
		Weapons:      make([]WeaponGroup, 0, len(src.Weapons)),
		echoesByCost: make(map[int][]string),
		mainStats:    make(map[int]CostStats),
		rolls:        make(map[string][]float64),
	}
	for _, g := range src.Weapons {
		t.Weapons = append(t.Weapons, WeaponGroup{Type: g.Type, Names: append([]string(nil), g.Names...)})
	}
	for _, e := range src.Echoes {
		t.echoesByCost[e.Cost] = append(t.echoesByCost[e.Cost], e.Name)
	}
	for _, c := range src.MainStats {
		if _, dup := t.mainStats[c.Cost]; dup {
			return nil, fmt.Errorf("reference: duplicate main stats for cost %d", c.Cost)
		}
		cs := CostStats{Default: c.Default, ranges: make(map[string]Range, len(c.Labels))}
		for _, l := range c.Labels {
			if _, dup := cs.ranges[l.Label]; dup {
				return nil, fmt.Errorf("reference: duplicate main stat %s for cost %d", l.Label, c.Cost)
			}
			cs.labels = append(cs.labels, l.Label)
			cs.ranges[l.Label] = l.Range
		}
		t.mainStats[c.Cost] = cs
	}
	for _, s := range src.Substats {
		if _, dup := t.rolls[s.Name]; dup {
			return nil, fmt.Errorf("reference: duplicate substat %s", s.Name)
		}
		t.substatNames = append(t.substatNames, s.Name)
		t.rolls[s.Name] = append([]float64(nil), s.Rolls...)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
