package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"veloj/internal/judge/model"
	"veloj/internal/judge/queue"
)

type fakeFinalizer struct {
	completed map[string]*model.JudgingResult
}

func (f *fakeFinalizer) CompleteSubmission(_ context.Context, id string, result *model.JudgingResult) (bool, error) {
	if f.completed == nil {
		f.completed = make(map[string]*model.JudgingResult)
	}
	f.completed[id] = result
	return true, nil
}

func exhaustedJob(t *testing.T, attempts int) queue.Job {
	t.Helper()
	payload, err := json.Marshal(model.SubmissionJob{
		SubmissionID: "sub-9",
		ProblemKey:   "two-sum",
		SourceCode:   "print(1)",
		Language:     model.LangPython,
	})
	if err != nil {
		t.Fatalf("encode job: %v", err)
	}
	return queue.Job{ID: "job-9", Payload: payload, Attempts: attempts}
}

func TestFinalizeExhaustedJobHidesInfraDetail(t *testing.T) {
	sink := &fakeFinalizer{}
	cause := errors.New(`dial tcp 10.0.0.7:3306: connect: connection refused`)

	finalizeExhaustedJob(sink, exhaustedJob(t, 3), cause)

	result := sink.completed["sub-9"]
	if result == nil {
		t.Fatal("submission was not finalized")
	}
	if result.Verdict != model.VerdictRuntimeError {
		t.Fatalf("verdict = %s, want %s", result.Verdict, model.VerdictRuntimeError)
	}
	if result.ErrorMessage != "judging failed after 3 attempts" {
		t.Fatalf("error message = %q, want the generic attempt count", result.ErrorMessage)
	}
	if strings.Contains(result.ErrorMessage, "dial tcp") || strings.Contains(result.ErrorMessage, "10.0.0.7") {
		t.Fatalf("error message leaks the cause: %q", result.ErrorMessage)
	}
}

func TestFinalizeExhaustedJobSkipsUndecodablePayload(t *testing.T) {
	sink := &fakeFinalizer{}
	job := queue.Job{ID: "job-bad", Payload: []byte("{"), Attempts: 1}

	finalizeExhaustedJob(sink, job, errors.New("boom"))

	if len(sink.completed) != 0 {
		t.Fatalf("expected no finalization, got %v", sink.completed)
	}
}
