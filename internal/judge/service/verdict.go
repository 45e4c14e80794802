package service

import (
	"fmt"

	"veloj/internal/judge/model"
)

// verdictFor maps a failed execution outcome to the submission verdict it
// implies. Passing outcomes never reach this table.
func verdictFor(status model.OutcomeStatus) model.Verdict {
	switch status {
	case model.StatusWrongOutput:
		return model.VerdictWrongAnswer
	case model.StatusTimeLimit:
		return model.VerdictTimeLimitExceeded
	case model.StatusMemoryLimit:
		return model.VerdictMemoryLimit
	case model.StatusCompileError:
		return model.VerdictCompilationError
	default:
		return model.VerdictRuntimeError
	}
}

// caseFailureMessage builds the diagnostic for the first failing case.
// Compile and runtime failures surface the program's own output; the other
// statuses name the case number.
func caseFailureMessage(index int, outcome model.ExecutionOutcome) string {
	switch outcome.Status {
	case model.StatusTimeLimit:
		return fmt.Sprintf("Test case %d: Time limit exceeded", index)
	case model.StatusCompileError:
		if outcome.CompileOutput != "" {
			return outcome.CompileOutput
		}
		if outcome.Stderr != "" {
			return outcome.Stderr
		}
		return "compilation failed"
	case model.StatusRuntimeError:
		if outcome.Stderr != "" {
			return outcome.Stderr
		}
		if outcome.Message != "" {
			return outcome.Message
		}
		return fmt.Sprintf("Test case %d failed", index)
	}
	if outcome.Message != "" {
		return fmt.Sprintf("Test case %d failed: %s", index, outcome.Message)
	}
	return fmt.Sprintf("Test case %d failed", index)
}
