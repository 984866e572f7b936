package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/mcpc/config"
)

func TestMatchPattern(t *testing.T) {
	testCases := []struct {
		pattern string
		name    string
		matches bool
	}{
		{"read_file", "read_file", true},
		{"read_file", "Read_File", true},
		{"READ_*", "read_file", true},
		{"*", "anything", true},
		{"*", "", true},
		{"delete_*", "delete_file", true},
		{"delete_*", "delete_", true},
		{"delete_*", "deleted", false},
		{"?ead_file", "read_file", true},
		{"?ead_file", "ead_file", false},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "abc", true},
		{"a*b*c", "acb", false},
		{"read_?ile", "read_file", true},
		{"read_?ile", "read_ile", false},
		{"", "", true},
		{"", "x", false},
		// Regex metacharacters are literal.
		{"read.file", "readxfile", false},
		{"read.file", "read.file", true},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.matches, MatchPattern(testCase.pattern, testCase.name),
			"pattern %q against %q", testCase.pattern, testCase.name)
	}
}

func TestIsToolAllowed(t *testing.T) {
	testCases := []struct {
		description string
		record      config.Record
		tool        string
		allowed     bool
	}{
		{"no filters allows", config.Record{}, "anything", true},
		{"disable match denies", config.Record{DisabledTools: []string{"delete_*"}}, "delete_file", false},
		{"disable miss allows", config.Record{DisabledTools: []string{"delete_*"}}, "read_file", true},
		{"allow list admits match", config.Record{AllowedTools: []string{"read_*"}}, "read_file", true},
		{"allow list rejects miss", config.Record{AllowedTools: []string{"read_*"}}, "write_file", false},
		{"disable dominates allow", config.Record{AllowedTools: []string{"*"}, DisabledTools: []string{"rm"}}, "rm", false},
		{"case insensitive deny", config.Record{DisabledTools: []string{"RM"}}, "rm", false},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.allowed, IsToolAllowed(testCase.tool, &testCase.record), testCase.description)
	}
}
