package model

import "math"

// Verdict is the final classification of a submission.
type Verdict string

const (
	VerdictAccepted          Verdict = "ACCEPTED"
	VerdictWrongAnswer       Verdict = "WRONG_ANSWER"
	VerdictTimeLimitExceeded Verdict = "TIME_LIMIT_EXCEEDED"
	VerdictMemoryLimit       Verdict = "MEMORY_LIMIT_EXCEEDED"
	VerdictRuntimeError      Verdict = "RUNTIME_ERROR"
	VerdictCompilationError  Verdict = "COMPILATION_ERROR"
)

// CaseResult is the structured per-case record kept for UI display.
type CaseResult struct {
	Case     int    `json:"case"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	TimeMs   int64  `json:"time_ms"`
	MemoryKB int64  `json:"memory_kb"`
	Error    string `json:"error,omitempty"`
}

// JudgingResult is the aggregate verdict for one submission.
// Created once per judging run; immutable after persistence.
type JudgingResult struct {
	Verdict       Verdict      `json:"verdict"`
	Passed        int          `json:"passed"`
	Total         int          `json:"total"`
	Score         int          `json:"score"`
	AvgTimeMs     int64        `json:"avg_time_ms"`
	PeakMemoryKB  int64        `json:"peak_memory_kb"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	Stdout        string       `json:"stdout,omitempty"`
	Stderr        string       `json:"stderr,omitempty"`
	CompileOutput string       `json:"compile_output,omitempty"`
	Cases         []CaseResult `json:"cases,omitempty"`
}

// Score computes the percentage of passed test cases, rounded half up.
func Score(passed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(passed) / float64(total)))
}
