package echo

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/wuwabuilds/scan-worker/internal/analysis"
	"github.com/wuwabuilds/scan-worker/internal/reference"
)

var (
	atkRolls      = []float64{6.4, 7.1, 7.9, 8.6, 9.4, 10.1, 10.9, 11.6}
	critRateRolls = []float64{6.3, 6.9, 7.5, 8.1, 8.7, 9.3, 9.9, 10.5}
)

// fixtureTables mirrors the simple tables used for the basic scenario: cost 4
// offers a plain "ATK" main stat and substats are ATK and Crit Rate only.
func fixtureTables(t *testing.T) *reference.Tables {
	t.Helper()
	tables, err := reference.New(reference.Source{
		Characters: []string{"Jiyan"},
		Echoes: []reference.EchoEntry{
			{Name: "Bell-Borne Geneslinger", Cost: 4},
			{Name: "Crownless", Cost: 4},
			{Name: "Havoc Dreadmane", Cost: 3},
			{Name: "Havoc Prism", Cost: 1},
			{Name: "Glacio Prism", Cost: 1},
		},
		MainStats: []reference.CostSource{
			{
				Cost:    4,
				Default: reference.FixedStat{Label: "ATK", Range: reference.Range{Min: 30, Max: 150}},
				Labels: []reference.LabeledRange{
					{Label: "ATK", Range: reference.Range{Min: 6.6, Max: 33}},
					{Label: "Crit Rate", Range: reference.Range{Min: 4.4, Max: 22}},
				},
			},
			{
				Cost: 3,
				Labels: []reference.LabeledRange{
					{Label: "Havoc DMG", Range: reference.Range{Min: 6, Max: 30}},
					{Label: "Energy Regen", Range: reference.Range{Min: 6.4, Max: 32}},
				},
			},
		},
		Substats: []reference.SubstatSource{
			{Name: "ATK", Rolls: atkRolls},
			{Name: "Crit Rate", Rolls: critRateRolls},
		},
	})
	if err != nil {
		t.Fatalf("fixture tables: %v", err)
	}
	return tables
}

func defaultParser(t *testing.T) *Parser {
	t.Helper()
	tables, err := reference.Default()
	if err != nil {
		t.Fatal(err)
	}
	return NewParser(tables, nil)
}

func TestParse_Scenario(t *testing.T) {
	p := NewParser(fixtureTables(t), nil)

	got := p.Parse("Bell-Borne Geneslinger COST 4 +15 ~ATK 9.3% ~ Crit Rate 8.0%")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if got.Name != "Bell-Borne Geneslinger" {
		t.Errorf("name: got %q", got.Name)
	}
	if got.Cost == nil || *got.Cost != 4 {
		t.Errorf("cost: got %v", got.Cost)
	}
	if got.Level == nil || *got.Level != 15 {
		t.Errorf("level: got %v", got.Level)
	}
	if got.MainStat != "ATK" {
		t.Errorf("main stat: got %q", got.MainStat)
	}
	want := []analysis.SubstatEntry{
		{Type: "ATK", Value: 9.4, IsPercentage: true},
		{Type: "Crit Rate", Value: 8.1, IsPercentage: true},
	}
	if !reflect.DeepEqual(got.SubStats, want) {
		t.Errorf("substats:\n got %+v\nwant %+v", got.SubStats, want)
	}

	// 6.6 + (33-6.6)*15/25 = 22.44, displayed as 22.4
	if got.MainStatValue == nil || *got.MainStatValue != 22.4 {
		t.Errorf("main stat value: got %v", got.MainStatValue)
	}
	if got.DefaultStat == nil || got.DefaultStat.Type != "ATK" || math.Abs(got.DefaultStat.Value-102) > 1e-9 {
		t.Errorf("default stat: got %+v", got.DefaultStat)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	p := NewParser(fixtureTables(t), nil)

	tests := []struct {
		name     string
		cost     int
		level    int
		mainStat string
		subs     []analysis.SubstatEntry
	}{
		{"one substat", 4, 25, "Crit Rate", []analysis.SubstatEntry{{Type: "Crit Rate", Value: 6.9, IsPercentage: true}}},
		{"no substats", 4, 0, "ATK", []analysis.SubstatEntry{}},
		{"mixed", 3, 10, "Energy Regen", []analysis.SubstatEntry{
			{Type: "Crit Rate", Value: 10.5, IsPercentage: true},
			{Type: "ATK", Value: 11.6, IsPercentage: true},
		}},
	}
	names := map[int]string{4: "Crownless", 3: "Havoc Dreadmane"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			fmt.Fprintf(&b, "%s\nCOST %d\n+%d\n%s 12.0%%\n", names[tt.cost], tt.cost, tt.level, tt.mainStat)
			for _, s := range tt.subs {
				unit := ""
				if s.IsPercentage {
					unit = "%"
				}
				fmt.Fprintf(&b, "- %s %v%s\n", s.Type, s.Value, unit)
			}

			got := p.Parse(b.String())
			if got == nil {
				t.Fatalf("Parse(%q) returned nil", b.String())
			}
			if got.Name != names[tt.cost] || *got.Cost != tt.cost || *got.Level != tt.level || got.MainStat != tt.mainStat {
				t.Errorf("fields: got name=%q cost=%d level=%d main=%q", got.Name, *got.Cost, *got.Level, got.MainStat)
			}
			if !reflect.DeepEqual(got.SubStats, tt.subs) {
				t.Errorf("substats:\n got %+v\nwant %+v", got.SubStats, tt.subs)
			}
		})
	}
}

func TestParse_Name(t *testing.T) {
	p := NewParser(fixtureTables(t), nil)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"phantom prefix and noise", "© Phantom: Crownless | COST 4", "Crownless"},
		{"earlier lines ignored", "Data Bank\n12 ~ Crownless°\nCOST 4 +5", "Crownless"},
		{"unique prefix", "Bell-Borne Genes COST 4", "Bell-Borne Geneslinger"},
		{"fuzzy fallback with cost marker", "Bell-Borne Genes1inger COST 4", "Bell-Borne Geneslinger"},
		{"ambiguous prefix narrowed by cost", "Havoc P COST 1", "Havoc Prism"},
		{"ambiguous prefix resolved by matcher", "Havoc Dreadmane COST", "Havoc Dreadmane"},
		{"unknown name kept when cost marker present", "Mystery Beast COST 4", "Mystery Beast"},
		{"no cost marker but known name", "Glacio Prism\n+3", "Glacio Prism"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.raw)
			if got == nil {
				t.Fatalf("Parse(%q) returned nil", tt.raw)
			}
			if got.Name != tt.want {
				t.Errorf("name: got %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestParse_Nil(t *testing.T) {
	p := NewParser(fixtureTables(t), nil)

	for _, raw := range []string{"", "   \n ", "12345 COST 4", "Lv.90/90 a character sheet"} {
		if got := p.Parse(raw); got != nil {
			t.Errorf("Parse(%q): expected nil, got %+v", raw, got)
		}
	}
}

func TestParse_MissingFieldsStayAbsent(t *testing.T) {
	p := NewParser(fixtureTables(t), nil)

	got := p.Parse("Crownless COST")
	if got == nil {
		t.Fatal("expected result")
	}
	if got.Cost != nil || got.Level != nil || got.MainStatValue != nil || got.DefaultStat != nil {
		t.Errorf("absent fields were filled: %+v", got)
	}
	if got.SubStats == nil || len(got.SubStats) != 0 {
		t.Errorf("substats should be an empty list: %v", got.SubStats)
	}
}

func TestParse_DropsUnresolvedSubstats(t *testing.T) {
	p := NewParser(fixtureTables(t), nil)

	got := p.Parse("Crownless COST 4 +25 Crit Rate 22% ~ Zzqxv 4.4% ~ Crit Rate 6.2% ~ nothing here")
	if got == nil {
		t.Fatal("expected result")
	}
	want := []analysis.SubstatEntry{{Type: "Crit Rate", Value: 6.3, IsPercentage: true}}
	if !reflect.DeepEqual(got.SubStats, want) {
		t.Errorf("substats: got %+v, want %+v", got.SubStats, want)
	}
}

func TestParse_CapsSubstats(t *testing.T) {
	p := NewParser(fixtureTables(t), nil)

	raw := "Crownless COST 4 +25 Crit Rate 22%" + strings.Repeat(" ~ ATK 50", 7)
	got := p.Parse(raw)
	if got == nil || len(got.SubStats) != MaxSubstats {
		t.Fatalf("expected %d substats, got %+v", MaxSubstats, got)
	}
}

func TestParse_StopsAtEchoWord(t *testing.T) {
	p := NewParser(fixtureTables(t), nil)

	got := p.Parse("Crownless COST 4 +25 Crit Rate 22% ~ Crit Rate Echo 9.9%")
	if got == nil {
		t.Fatal("expected result")
	}
	if len(got.SubStats) != 0 {
		t.Fatalf("segment should end at Echo: %+v", got.SubStats)
	}
}

func TestParse_DefaultTables(t *testing.T) {
	p := defaultParser(t)

	raw := strings.Join([]string{
		"Phantom: Inferno Rider",
		"COST 4",
		"+25",
		"Crit. DMG 44.0%",
		"ATK 150",
		"- Crit. Rate 8.7%",
		"- ATK 10.0%",
		"- Resonance Liberation DMG Bonus 8.6%",
		"~ DEF 52",
		"- Energy Regen 9.1%",
		"Echo Skill",
	}, "\n")

	got := p.Parse(raw)
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if got.Name != "Inferno Rider" || got.MainStat != "Crit DMG" {
		t.Errorf("got name=%q main=%q", got.Name, got.MainStat)
	}
	if got.MainStatValue == nil || math.Abs(*got.MainStatValue-44) > 1e-9 {
		t.Errorf("main stat value: got %v", got.MainStatValue)
	}
	want := []analysis.SubstatEntry{
		{Type: "Crit Rate", Value: 8.7, IsPercentage: true},
		{Type: "ATK%", Value: 10.1, IsPercentage: true},
		{Type: "Liberation DMG Bonus", Value: 8.6, IsPercentage: true},
		{Type: "DEF", Value: 50, IsPercentage: false},
		{Type: "Energy Regen", Value: 9.2, IsPercentage: true},
	}
	if !reflect.DeepEqual(got.SubStats, want) {
		t.Errorf("substats:\n got %+v\nwant %+v", got.SubStats, want)
	}
}

func TestParse_MainStatFallback(t *testing.T) {
	p := defaultParser(t)

	tests := []struct {
		raw  string
		want string
	}{
		{"Flautist COST 3 +10 Electro DMG Bonus 18.0 %", "Electro DMG"},
		{"Flautist COST 3 +10 Energy Regen", "Energy Regen"},
		{"Gulpuff COST 1 +5 HP 9.1", "HP%"},
		{"Dreamless COST 4 +5 Healing", "Healing Bonus"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := p.Parse(tt.raw)
			if got == nil {
				t.Fatal("Parse returned nil")
			}
			if got.MainStat != tt.want {
				t.Errorf("main stat: got %q, want %q", got.MainStat, tt.want)
			}
		})
	}
}

func TestNoiseWordsConfigurable(t *testing.T) {
	tables := fixtureTables(t)

	raw := "Crownless COST 4 +25 Crit Rate 22% ~ Crit Rate ATK 9.9%"

	// ATK is listed first and contained in the label, so it wins unless stripped.
	if got := NewParser(tables, nil).Parse(raw); got.SubStats[0].Type != "ATK" {
		t.Errorf("default noise words: got %+v", got.SubStats)
	}
	if got := NewParser(tables, []string{"ATK"}).Parse(raw); got.SubStats[0].Type != "Crit Rate" {
		t.Errorf("custom noise word should be stripped: got %+v", got.SubStats)
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  ©®Crownless!!", "Crownless"},
		{"Phantom:  Mourning  Aix", "Mourning Aix"},
		{"phantom : Feilian Beringal ~", "Feilian Beringal"},
		{"Nightmare: Crownless", "Nightmare: Crownless"},
		{"123", ""},
	}
	for _, tt := range tests {
		if got := cleanName(tt.in); got != tt.want {
			t.Errorf("cleanName(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
