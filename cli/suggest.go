package cli

import "strings"

// subcommands recognised by the dispatcher.
var subcommands = []string{"info", "grep", "call"}

// aliases map common guesses to the intended subcommand; they are never
// executed, only suggested.
var aliases = map[string]string{
	"run":      "call",
	"exec":     "call",
	"invoke":   "call",
	"tool":     "call",
	"ls":       "",
	"list":     "",
	"servers":  "",
	"show":     "info",
	"describe": "info",
	"detail":   "info",
	"search":   "grep",
	"find":     "grep",
	"filter":   "grep",
}

// suggestSubcommand returns the closest subcommand for an unknown token, or
// "" when nothing is plausible.
func suggestSubcommand(input string) string {
	lowered := strings.ToLower(input)
	if intended, ok := aliases[lowered]; ok {
		if intended == "" {
			return "running mcpc with no arguments"
		}
		return intended
	}
	best, bestDistance := "", 3
	for _, candidate := range subcommands {
		if distance := levenshtein(lowered, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}
	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[j] = min3(current[j-1]+1, previous[j]+1, previous[j-1]+cost)
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
