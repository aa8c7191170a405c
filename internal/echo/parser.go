/**
 * Echo Field Parser
 *
 * Resolves the recognized text of an echo sheet into name, cost, level,
 * main stat and up to five substats. Each field is resolved independently;
 * a field that cannot be read is left absent instead of guessed. Parse only
 * gives up when not even a name can be found.
 */

package echo

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/wuwabuilds/scan-worker/internal/analysis"
	werrors "github.com/wuwabuilds/scan-worker/internal/errors"
	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/matcher"
	"github.com/wuwabuilds/scan-worker/internal/reference"
	"github.com/wuwabuilds/scan-worker/internal/snapper"
)

// MaxSubstats is the number of substat slots on an echo.
const MaxSubstats = 5

// DefaultNoiseWords are stripped from substat labels before matching.
var DefaultNoiseWords = []string{"Resonance"}

var (
	costPattern      = regexp.MustCompile(`COST\s*(\d+)`)
	levelPattern     = regexp.MustCompile(`\+(\d+)`)
	mainStatPattern  = regexp.MustCompile(`([A-Za-z][A-Za-z. ]*?)\s*(\d+(?:\.\d+)?)\s*%`)
	bulletPattern    = regexp.MustCompile(`(?:^|\s)[-~]`)
	echoWordPattern  = regexp.MustCompile(`\bEcho\b`)
	magnitudePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(%?)`)
	phantomPrefix    = regexp.MustCompile(`(?i)^phantom\s*:\s*`)
)

// mainStatFallback maps a recognizable main-stat shape to candidate labels,
// tried in order against the labels valid for the echo's cost.
type mainStatFallback struct {
	pattern *regexp.Regexp
	labels  func(m []string) []string
}

var mainStatFallbacks = []mainStatFallback{
	{regexp.MustCompile(`(?i)(glacio|fusion|electro|aero|spectro|havoc)\s*dmg`), func(m []string) []string {
		return []string{titleCase(m[1]) + " DMG"}
	}},
	{regexp.MustCompile(`(?i)crit\.?\s*rate`), fixed("Crit Rate")},
	{regexp.MustCompile(`(?i)crit\.?\s*dmg`), fixed("Crit DMG")},
	{regexp.MustCompile(`(?i)\bATK\b`), fixed("ATK%", "ATK")},
	{regexp.MustCompile(`(?i)\bDEF\b`), fixed("DEF%", "DEF")},
	{regexp.MustCompile(`(?i)\bHP\b`), fixed("HP%", "HP")},
	{regexp.MustCompile(`(?i)energy\s*regen`), fixed("Energy Regen")},
	{regexp.MustCompile(`(?i)healing(\s*bonus)?`), fixed("Healing Bonus")},
}

func fixed(labels ...string) func([]string) []string {
	return func([]string) []string { return labels }
}

// Parser resolves echo sheets against reference tables. It is safe for
// concurrent use.
type Parser struct {
	tables *reference.Tables
	noise  []*regexp.Regexp
	logger *logging.Logger
}

// NewParser creates a parser. noiseWords are removed, case-insensitively and
// as whole words, from substat labels; nil selects DefaultNoiseWords.
func NewParser(tables *reference.Tables, noiseWords []string) *Parser {
	if noiseWords == nil {
		noiseWords = DefaultNoiseWords
	}
	p := &Parser{
		tables: tables,
		logger: logging.NewLogger("echo"),
	}
	for _, w := range noiseWords {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		p.noise = append(p.noise, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return p
}

// Parse resolves raw echo-page text. It returns nil when no name is found.
func (p *Parser) Parse(raw string) *analysis.EchoResult {
	result := &analysis.EchoResult{SubStats: []analysis.SubstatEntry{}}

	costLoc := costPattern.FindStringSubmatchIndex(raw)
	cost := 0
	if costLoc != nil {
		if c, err := strconv.Atoi(raw[costLoc[2]:costLoc[3]]); err == nil {
			cost = c
			result.Cost = analysis.IntPtr(c)
		}
	}

	name, ok := p.parseName(raw, costLoc, cost)
	if !ok {
		p.logger.Debug("Echo text unparseable", "error", werrors.NewUnparseableEchoError(raw))
		return nil
	}
	result.Name = name

	relevant := raw
	if costLoc != nil {
		relevant = raw[costLoc[1]:]
	}
	if loc := levelPattern.FindStringSubmatchIndex(relevant); loc != nil {
		if lvl, err := strconv.Atoi(relevant[loc[2]:loc[3]]); err == nil && lvl >= 0 && lvl <= reference.MaxEchoLevel {
			result.Level = analysis.IntPtr(lvl)
		}
		relevant = relevant[loc[1]:]
	}

	result.MainStat = p.parseMainStat(relevant, cost)
	p.deriveValues(result, cost)
	result.SubStats = p.parseSubstats(raw)

	return result
}

// parseName finds the echo name. Without a COST marker the first line is
// accepted only when it resolves to a known echo.
func (p *Parser) parseName(raw string, costLoc []int, cost int) (string, bool) {
	var candidate string
	if costLoc != nil {
		candidate = lastLine(raw[:costLoc[0]])
	} else {
		candidate = firstLine(raw)
	}
	cleaned := cleanName(candidate)
	if cleaned == "" {
		return "", false
	}
	if canonical, ok := p.resolveName(cleaned, cost, costLoc != nil); ok {
		return canonical, true
	}
	if costLoc == nil {
		return "", false
	}
	p.logger.Debug("Echo name kept as read", "error", werrors.NewUnresolvedMatchError("echo_name", cleaned))
	return cleaned, true
}

// resolveName maps a cleaned name to a canonical echo name. Only prefix
// matches are considered unless loose is set, in which case a name with no
// prefix match is fuzzy-matched against every echo.
func (p *Parser) resolveName(cleaned string, cost int, loose bool) (string, bool) {
	words := strings.Fields(cleaned)
	key := words[0]
	if strings.Contains(cleaned, "-") && len(words) >= 2 {
		key = words[0] + " " + words[1]
	}
	key = strings.ToLower(key)

	pool := p.tables.AllEchoNames(cost)
	var matches []string
	for _, n := range pool {
		if strings.HasPrefix(strings.ToLower(n), key) {
			matches = append(matches, n)
		}
	}
	if cost != 0 {
		var sameCost []string
		for _, n := range p.tables.EchoNames(cost) {
			for _, m := range matches {
				if m == n {
					sameCost = append(sameCost, n)
				}
			}
		}
		if len(sameCost) > 0 {
			matches = sameCost
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], true
	case 0:
		if !loose {
			return "", false
		}
		return matcher.Match(cleaned, pool)
	default:
		return matcher.Match(cleaned, matches)
	}
}

// parseMainStat reads the main stat from the text following the level marker.
func (p *Parser) parseMainStat(relevant string, cost int) string {
	labels := p.mainLabels(cost)
	if len(labels) == 0 {
		return ""
	}

	if m := mainStatPattern.FindStringSubmatch(relevant); m != nil {
		if label, ok := matcher.Match(strings.TrimSpace(m[1]), labels); ok {
			return label
		}
	}

	valid := make(map[string]bool, len(labels))
	for _, l := range labels {
		valid[l] = true
	}
	for _, fb := range mainStatFallbacks {
		m := fb.pattern.FindStringSubmatch(relevant)
		if m == nil {
			continue
		}
		for _, l := range fb.labels(m) {
			if valid[l] {
				return l
			}
		}
	}
	p.logger.Debug("Main stat unresolved", "error", werrors.NewUnresolvedMatchError("main_stat", relevant))
	return ""
}

func (p *Parser) mainLabels(cost int) []string {
	if cs, ok := p.tables.MainStats(cost); ok {
		return cs.Labels()
	}
	return p.tables.AllMainStatLabels()
}

// deriveValues fills the main and default stat values, which depend only on
// cost and level. Values are rounded to the one decimal the game displays.
func (p *Parser) deriveValues(result *analysis.EchoResult, cost int) {
	if result.Level == nil {
		return
	}
	cs, ok := p.tables.MainStats(cost)
	if !ok {
		return
	}
	if r, ok := cs.Range(result.MainStat); ok {
		v := displayValue(r.At(*result.Level))
		result.MainStatValue = &v
	}
	if cs.Default.Label != "" {
		result.DefaultStat = &analysis.StatValue{
			Type:  cs.Default.Label,
			Value: displayValue(cs.Default.Range.At(*result.Level)),
		}
	}
}

func displayValue(v float64) float64 {
	return math.Round(v*10) / 10
}

// parseSubstats resolves every bulleted segment. Unresolved segments are dropped.
func (p *Parser) parseSubstats(raw string) []analysis.SubstatEntry {
	out := []analysis.SubstatEntry{}
	names := p.tables.SubstatNames()
	if len(names) == 0 {
		return out
	}

	for _, seg := range segments(raw) {
		if len(out) == MaxSubstats {
			break
		}
		entry, ok := p.parseSubstat(seg, names)
		if !ok {
			p.logger.Debug("Substat dropped", "error", werrors.NewUnresolvedMatchError("substat", seg))
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (p *Parser) parseSubstat(seg string, names []string) (analysis.SubstatEntry, bool) {
	loc := magnitudePattern.FindStringSubmatchIndex(seg)
	if loc == nil {
		return analysis.SubstatEntry{}, false
	}
	value, err := strconv.ParseFloat(seg[loc[2]:loc[3]], 64)
	if err != nil {
		return analysis.SubstatEntry{}, false
	}
	isPercent := loc[5] > loc[4]

	label := seg[:loc[0]] + " " + seg[loc[1]:]
	for _, re := range p.noise {
		label = re.ReplaceAllString(label, " ")
	}
	label = stripPunctuation(label)

	stat, ok := matcher.Match(label, names)
	if !ok {
		return analysis.SubstatEntry{}, false
	}
	stat = p.percentVariant(stat, isPercent)

	rolls, ok := p.tables.Rolls(stat)
	if !ok || len(rolls) == 0 {
		return analysis.SubstatEntry{}, false
	}
	return analysis.SubstatEntry{
		Type:         stat,
		Value:        snapper.Snap(value, rolls),
		IsPercentage: isPercent,
	}, true
}

// percentVariant picks between a flat stat and its "%" twin based on how the
// value was printed, when both exist.
func (p *Parser) percentVariant(stat string, isPercent bool) string {
	base := strings.TrimSuffix(stat, "%")
	switch base {
	case "HP", "ATK", "DEF":
	default:
		return stat
	}
	if isPercent && p.tables.HasSubstat(base+"%") {
		return base + "%"
	}
	if !isPercent && p.tables.HasSubstat(base) {
		return base
	}
	return stat
}

// segments splits raw into the text following each bullet, ending at the next
// bullet, the word "Echo" or the end of text.
func segments(raw string) []string {
	locs := bulletPattern.FindAllStringIndex(raw, -1)
	out := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		seg := raw[loc[1]:end]
		if e := echoWordPattern.FindStringIndex(seg); e != nil {
			seg = seg[:e[0]]
		}
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func cleanName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		case r == '-', r == '\'', r == ':':
			return r
		}
		return -1
	}, s)
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	s = phantomPrefix.ReplaceAllString(s, "")
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	s = strings.TrimRightFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	return strings.Join(strings.Fields(s), " ")
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func firstLine(s string) string {
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}
