// Package matcher resolves noisy recognized strings against a closed list of
// valid names and labels.
//
// Scoring, after normalization:
//
//	exact match            1.0 (returned immediately)
//	containment either way 0.8
//	otherwise              |runes(a) ∩ runes(b)| / max(|runes(a)|, |runes(b)|)
//
// A best score of Floor or less is no match. Among equal scores the candidate
// seen first wins, so callers control tie-breaks through candidate order.
package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	Floor            = 0.5
	ExactScore       = 1.0
	ContainmentScore = 0.8
)

var replacer = strings.NewReplacer("crit.", "crit")

// Normalize folds a string into the form used for comparison: NFKC,
// lowercase, single spaces, "crit." read as "crit" and a trailing "bonus"
// dropped.
func Normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	s = replacer.Replace(s)
	s = strings.TrimSuffix(s, " bonus")
	if s == "bonus" {
		return ""
	}
	return s
}

// Match returns the best candidate for raw, or false when nothing scores
// above Floor.
func Match(raw string, candidates []string) (string, bool) {
	best, score := Best(raw, candidates)
	if score <= Floor {
		return "", false
	}
	return best, true
}

// Best returns the highest scoring candidate and its score regardless of
// Floor. It returns ("", 0) when raw or candidates normalize to nothing.
func Best(raw string, candidates []string) (string, float64) {
	input := Normalize(raw)
	if input == "" {
		return "", 0
	}
	inputRunes := runeSet(input)

	var best string
	bestScore := 0.0
	for _, c := range candidates {
		nc := Normalize(c)
		if nc == "" {
			continue
		}
		var score float64
		switch {
		case nc == input:
			return c, ExactScore
		case strings.Contains(input, nc) || strings.Contains(nc, input):
			score = ContainmentScore
		default:
			score = overlap(inputRunes, runeSet(nc))
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		if r == ' ' {
			continue
		}
		set[r] = struct{}{}
	}
	return set
}

func overlap(a, b map[rune]struct{}) float64 {
	denom := max(len(a), len(b))
	if denom == 0 {
		return 0
	}
	shared := 0
	for r := range a {
		if _, ok := b[r]; ok {
			shared++
		}
	}
	return float64(shared) / float64(denom)
}
