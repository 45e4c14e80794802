// Package loader resolves a problem key to its ordered test cases.
package loader

import (
	"context"

	"veloj/internal/judge/model"
)

// TestCaseLoader fetches the test cases of a problem. An unknown problem
// key yields an empty slice, not an error; only backend failures error.
type TestCaseLoader interface {
	// SampleTestCases returns only the publicly visible cases, in order.
	SampleTestCases(ctx context.Context, problemKey string) ([]model.TestCase, error)
	// HiddenTestCases returns the full judging set, in order.
	HiddenTestCases(ctx context.Context, problemKey string) ([]model.TestCase, error)
}

// Select returns the case set a job asks for.
func Select(ctx context.Context, l TestCaseLoader, job model.SubmissionJob) ([]model.TestCase, error) {
	if job.SampleOnly {
		return l.SampleTestCases(ctx, job.ProblemKey)
	}
	return l.HiddenTestCases(ctx, job.ProblemKey)
}
