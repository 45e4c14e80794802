package model

// TestCase is one (input, expected output) pair belonging to a problem.
// Test cases for a problem are immutable for the duration of a judging run;
// their ordering is stable and significant.
type TestCase struct {
	Index    int    `json:"index"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Sample   bool   `json:"sample"`
	Weight   int    `json:"weight,omitempty"`
}
