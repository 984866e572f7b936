package conn

import (
	"strings"

	"github.com/viant/mcpc/config"
)

// MatchPattern implements the tool filter glob dialect: '*' matches any run
// of characters, '?' exactly one, everything else is literal; comparison is
// case-insensitive. Deliberately narrower than path.Match - no character
// classes, no separator awareness.
func MatchPattern(pattern, name string) bool {
	return matchFold(strings.ToLower(pattern), strings.ToLower(name))
}

func matchFold(pattern, name string) bool {
	// Iterative glob with single-star backtracking.
	patternIndex, nameIndex := 0, 0
	starPattern, starName := -1, 0
	for nameIndex < len(name) {
		switch {
		case patternIndex < len(pattern) && (pattern[patternIndex] == '?' || pattern[patternIndex] == name[nameIndex]):
			patternIndex++
			nameIndex++
		case patternIndex < len(pattern) && pattern[patternIndex] == '*':
			starPattern = patternIndex
			starName = nameIndex
			patternIndex++
		case starPattern >= 0:
			patternIndex = starPattern + 1
			starName++
			nameIndex = starName
		default:
			return false
		}
	}
	for patternIndex < len(pattern) && pattern[patternIndex] == '*' {
		patternIndex++
	}
	return patternIndex == len(pattern)
}

// IsToolAllowed applies the record's allow/deny filter: a disabledTools match
// denies unconditionally; otherwise a non-empty allowedTools list must match;
// otherwise the tool is allowed.
func IsToolAllowed(tool string, record *config.Record) bool {
	for _, pattern := range record.DisabledTools {
		if MatchPattern(pattern, tool) {
			return false
		}
	}
	if len(record.AllowedTools) == 0 {
		return true
	}
	for _, pattern := range record.AllowedTools {
		if MatchPattern(pattern, tool) {
			return true
		}
	}
	return false
}
