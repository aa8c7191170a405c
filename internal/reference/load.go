package reference

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
)

// File names expected in a reference data directory.
const (
	CharactersFile = "characters.json"
	WeaponsFile    = "weapons.json"
	EchoesFile     = "echoes.json"
	MainStatsFile  = "mainstats.json"
	SubstatsFile   = "substats.json"
)

//go:embed data/*.json
var embedded embed.FS

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// Default returns the tables compiled into the binary.
func Default() (*Tables, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "data")
		if err != nil {
			defaultErr = err
			return
		}
		defaultTables, defaultErr = LoadFS(sub)
	})
	return defaultTables, defaultErr
}

// LoadDir loads tables from a directory on disk.
func LoadDir(dir string) (*Tables, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS loads tables from the five reference files in fsys.
func LoadFS(fsys fs.FS) (*Tables, error) {
	var src Source

	if err := readJSON(fsys, CharactersFile, &src.Characters); err != nil {
		return nil, err
	}
	if err := readJSON(fsys, WeaponsFile, &src.Weapons); err != nil {
		return nil, err
	}

	echoes, err := readOrdered(fsys, EchoesFile)
	if err != nil {
		return nil, err
	}
	for _, m := range echoes {
		cost, err := strconv.Atoi(m.key)
		if err != nil {
			return nil, fmt.Errorf("%s: cost key %q is not a number", EchoesFile, m.key)
		}
		var names []string
		if err := json.Unmarshal(m.value, &names); err != nil {
			return nil, fmt.Errorf("%s: cost %d: %w", EchoesFile, cost, err)
		}
		for _, n := range names {
			src.Echoes = append(src.Echoes, EchoEntry{Name: n, Cost: cost})
		}
	}

	mains, err := readOrdered(fsys, MainStatsFile)
	if err != nil {
		return nil, err
	}
	for _, m := range mains {
		cs, err := decodeCost(m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", MainStatsFile, err)
		}
		src.MainStats = append(src.MainStats, cs)
	}

	subs, err := readOrdered(fsys, SubstatsFile)
	if err != nil {
		return nil, err
	}
	for _, m := range subs {
		var rolls []float64
		if err := json.Unmarshal(m.value, &rolls); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", SubstatsFile, m.key, err)
		}
		src.Substats = append(src.Substats, SubstatSource{Name: m.key, Rolls: rolls})
	}

	return New(src)
}

// decodeCost reads one `"4cost": {"default": [label, min, max], "mainStats": {...}}` entry.
func decodeCost(m member) (CostSource, error) {
	cost, err := strconv.Atoi(strings.TrimSuffix(m.key, "cost"))
	if err != nil {
		return CostSource{}, fmt.Errorf("key %q is not <n>cost", m.key)
	}

	var body struct {
		Default   []json.RawMessage `json:"default"`
		MainStats json.RawMessage   `json:"mainStats"`
	}
	if err := json.Unmarshal(m.value, &body); err != nil {
		return CostSource{}, fmt.Errorf("%s: %w", m.key, err)
	}

	cs := CostSource{Cost: cost}
	if len(body.Default) == 3 {
		var label string
		var lo, hi float64
		if err := unmarshalAll(body.Default, &label, &lo, &hi); err != nil {
			return CostSource{}, fmt.Errorf("%s default: %w", m.key, err)
		}
		cs.Default = FixedStat{Label: label, Range: Range{Min: lo, Max: hi}}
	} else if len(body.Default) != 0 {
		return CostSource{}, fmt.Errorf("%s default: want [label, min, max]", m.key)
	}

	stats, err := decodeOrdered(body.MainStats)
	if err != nil {
		return CostSource{}, fmt.Errorf("%s mainStats: %w", m.key, err)
	}
	for _, s := range stats {
		var pair [2]float64
		if err := json.Unmarshal(s.value, &pair); err != nil {
			return CostSource{}, fmt.Errorf("%s %s: %w", m.key, s.key, err)
		}
		cs.Labels = append(cs.Labels, LabeledRange{Label: s.key, Range: Range{Min: pair[0], Max: pair[1]}})
	}
	return cs, nil
}

func unmarshalAll(raw []json.RawMessage, dst ...interface{}) error {
	for i := range dst {
		if err := json.Unmarshal(raw[i], dst[i]); err != nil {
			return err
		}
	}
	return nil
}

func readJSON(fsys fs.FS, name string, v interface{}) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func readOrdered(fsys fs.FS, name string) ([]member, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	members, err := decodeOrdered(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return members, nil
}

type member struct {
	key   string
	value json.RawMessage
}

// decodeOrdered decodes a JSON object into its members in document order.
func decodeOrdered(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, member{key: key, value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
