// Package classifier decides which entity a screenshot shows from the raw
// text of its regions and extracts the fields of that entity.
//
// The decision is a strict short-circuit chain: character, then weapon, then
// echo, then unknown. A screenshot whose text would satisfy more than one
// type always resolves to the earliest type in the chain.
package classifier

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/wuwabuilds/scan-worker/internal/analysis"
	"github.com/wuwabuilds/scan-worker/internal/echo"
	"github.com/wuwabuilds/scan-worker/internal/logging"
	"github.com/wuwabuilds/scan-worker/internal/reference"
	"github.com/wuwabuilds/scan-worker/internal/regions"
)

// UIDLength is the number of digits in a player UID.
const UIDLength = 9

// RoverName is reported for a havoc or spectro page whose name is not in the
// character table, since the player may rename Rover.
const RoverName = "Rover"

var (
	elementPattern = regexp.MustCompile(`(?i)aero|glacio|electro|havoc|fusion|spectro`)
	roverElements  = map[string]bool{"havoc": true, "spectro": true}
)

// levelPatterns are tried in order; the first capture is the current level.
var levelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Lv\.\s*(\d+)\s*/\s*(\d+)`),
	regexp.MustCompile(`(?i)Lv\s*(\d+)\s+(\d+)`),
	regexp.MustCompile(`(?i)Level\s*(\d+)\s*/\s*(\d+)`),
	regexp.MustCompile(`(\d+)\s*/\s*90\b`),
}

var (
	rankPattern     = regexp.MustCompile(`(?i)rank\s*(\d+)`)
	weaponLineNoise = strings.NewReplacer("©", "", `\`, "", "%", "", ":", "")
)

// Classifier is safe for concurrent use; it holds only read-only tables.
type Classifier struct {
	tables *reference.Tables
	parser *echo.Parser
	logger *logging.Logger
}

// New creates a classifier. A nil parser gets one with default noise words.
func New(tables *reference.Tables, parser *echo.Parser, logger *logging.Logger) *Classifier {
	if parser == nil {
		parser = echo.NewParser(tables, nil)
	}
	if logger == nil {
		logger = logging.NewLogger("classifier")
	}
	return &Classifier{tables: tables, parser: parser, logger: logger}
}

// Classify returns exactly one result for the regions of one image.
func (c *Classifier) Classify(results []analysis.RawRegionResult) analysis.Result {
	texts := analysis.RegionTexts(results)

	if ch, ok := c.character(texts[regions.CharacterPage], texts[regions.UID]); ok {
		return analysis.NewCharacter(ch)
	}
	if w, ok := c.weapon(texts[regions.WeaponPage]); ok {
		return analysis.NewWeapon(w)
	}
	if text := texts[regions.EchoPage]; strings.TrimSpace(text) != "" {
		if e := c.parser.Parse(text); e != nil {
			return analysis.NewEcho(*e)
		}
	}
	c.logger.Debug("Screenshot not classified", "regions", len(results))
	return analysis.Unknown()
}

func (c *Classifier) character(text, uidText string) (analysis.CharacterResult, bool) {
	if strings.TrimSpace(text) == "" {
		return analysis.CharacterResult{}, false
	}
	element := parseElement(text)
	result := analysis.CharacterResult{
		Level:   parseLevel(text),
		Element: element,
		UID:     parseUID(uidText),
	}

	lower := strings.ToLower(text)
	for _, name := range c.tables.Characters {
		if strings.Contains(lower, strings.ToLower(name)) {
			result.Name = name
			return result, true
		}
	}
	if roverElements[element] {
		result.Name = RoverName
		return result, true
	}
	return analysis.CharacterResult{}, false
}

// parseElement reads the element from the second line, where the page shows
// it under the name, and falls back to the whole text.
func parseElement(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 1 {
		if m := elementPattern.FindString(lines[1]); m != "" {
			return strings.ToLower(m)
		}
	}
	return strings.ToLower(elementPattern.FindString(text))
}

// weapon matches the cleaned first line first, since the weapon name heads
// the page, and falls back to the whole page.
func (c *Classifier) weapon(text string) (analysis.WeaponResult, bool) {
	if strings.TrimSpace(text) == "" {
		return analysis.WeaponResult{}, false
	}

	for _, haystack := range []string{cleanWeaponLine(firstLine(text)), strings.ToLower(text)} {
		if haystack == "" {
			continue
		}
		for _, g := range c.tables.Weapons {
			for _, name := range g.Names {
				if strings.Contains(haystack, strings.ToLower(name)) {
					return analysis.WeaponResult{
						Name:       name,
						WeaponType: g.Type,
						Level:      parseLevel(text),
						Rank:       parseRank(text),
					}, true
				}
			}
		}
	}
	return analysis.WeaponResult{}, false
}

func parseLevel(text string) *int {
	for _, re := range levelPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if lvl, err := strconv.Atoi(m[1]); err == nil {
			return analysis.ValidLevel(lvl)
		}
	}
	return nil
}

func parseRank(text string) *int {
	m := rankPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	rank, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return analysis.ValidRank(rank)
}

// parseUID keeps the last UIDLength digits; fewer digits mean no UID.
func parseUID(text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if len(digits) < UIDLength {
		return ""
	}
	return digits[len(digits)-UIDLength:]
}

// cleanWeaponLine removes the symbols OCR tends to read around the title
// and corrects the common q/g confusion.
func cleanWeaponLine(line string) string {
	line = weaponLineNoise.Replace(line)
	line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
	return strings.ReplaceAll(strings.ToLower(line), "q", "g")
}

func firstLine(s string) string {
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}
