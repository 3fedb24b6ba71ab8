package trivia

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Match judges an answer against the question. Both sides are normalized
// (casefold, trim, terminal punctuation stripped). Multiple choice accepts an
// exact option match or a single-letter ordinal shortcut, never fuzz.
// True/false maps common synonyms. Open-ended tolerates typos above
// fuzzyThreshold on a normalized edit-distance ratio.
func Match(q *Question, answer string, fuzzyThreshold float64) bool {
	if q == nil {
		return false
	}
	norm := normalize(answer)
	if norm == "" {
		return false
	}
	switch q.Type {
	case MultipleChoice:
		correct := normalize(q.Answer)
		if norm == correct {
			return true
		}
		if idx, ok := letterIndex(norm); ok && idx < len(q.Options) {
			return normalize(q.Options[idx]) == correct
		}
		return false
	case TrueFalse:
		return canonicalBool(norm) != "" && canonicalBool(norm) == canonicalBool(normalize(q.Answer))
	default:
		correct := normalize(q.Answer)
		if norm == correct {
			return true
		}
		return similarity(norm, correct) >= fuzzyThreshold
	}
}

// normalize casefolds, trims, and strips terminal punctuation.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for len(s) > 0 {
		switch s[len(s)-1] {
		case '.', '!', '?', ',':
			s = strings.TrimSpace(s[:len(s)-1])
		default:
			return s
		}
	}
	return s
}

// letterIndex resolves a single-letter MCQ shortcut to its option index.
func letterIndex(s string) (int, bool) {
	if len(s) != 1 || s[0] < 'a' || s[0] > 'z' {
		return 0, false
	}
	return int(s[0] - 'a'), true
}

func canonicalBool(s string) string {
	switch s {
	case "true", "t", "yes", "y":
		return "true"
	case "false", "f", "no", "n":
		return "false"
	}
	return ""
}

// similarity is 1 - editDistance/maxLen over runes.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	if max == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(max)
}
