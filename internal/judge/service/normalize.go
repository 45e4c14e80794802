package service

import "strings"

// NormalizeOutput canonicalizes program output for comparison: line endings
// become \n, trailing whitespace is stripped from every line, and trailing
// blank lines are dropped. Interior whitespace and letter case are
// untouched.
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}

// OutputsEqual compares actual against expected under normalization.
func OutputsEqual(actual, expected string) bool {
	return NormalizeOutput(actual) == NormalizeOutput(expected)
}
