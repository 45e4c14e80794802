package model_test

import (
	"testing"

	"veloj/internal/judge/model"
	appErr "veloj/pkg/errors"
)

func validPayload(t *testing.T, mutate func(*model.SubmissionJob)) []byte {
	t.Helper()
	job := model.SubmissionJob{
		SubmissionID: "sub-1",
		ProblemKey:   "two-sum",
		SourceCode:   "print(1)",
		Language:     model.LangPython,
	}
	if mutate != nil {
		mutate(&job)
	}
	payload, err := job.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return payload
}

func TestDecodeSubmissionJobDefaults(t *testing.T) {
	job, err := model.DecodeSubmissionJob(validPayload(t, nil))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.TimeLimitMs != 2000 {
		t.Fatalf("time limit = %d, want default 2000", job.TimeLimitMs)
	}
	if job.MemoryLimitMB != 256 {
		t.Fatalf("memory limit = %d, want default 256", job.MemoryLimitMB)
	}
}

func TestDecodeSubmissionJobKeepsExplicitLimits(t *testing.T) {
	job, err := model.DecodeSubmissionJob(validPayload(t, func(j *model.SubmissionJob) {
		j.TimeLimitMs = 5000
		j.MemoryLimitMB = 512
	}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.TimeLimitMs != 5000 || job.MemoryLimitMB != 512 {
		t.Fatalf("limits = %d/%d, want 5000/512", job.TimeLimitMs, job.MemoryLimitMB)
	}
}

func TestDecodeSubmissionJobValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.SubmissionJob)
	}{
		{"missing submission id", func(j *model.SubmissionJob) { j.SubmissionID = "" }},
		{"missing problem key", func(j *model.SubmissionJob) { j.ProblemKey = "" }},
		{"missing source", func(j *model.SubmissionJob) { j.SourceCode = "" }},
		{"unknown language", func(j *model.SubmissionJob) { j.Language = "COBOL" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := model.DecodeSubmissionJob(validPayload(t, tt.mutate)); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestDecodeSubmissionJobMalformedPayload(t *testing.T) {
	_, err := model.DecodeSubmissionJob([]byte("{oops"))
	if !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("err = %v, want invalid params", err)
	}
}

func TestParseLanguage(t *testing.T) {
	lang, err := model.ParseLanguage(" python ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if lang != model.LangPython {
		t.Fatalf("lang = %s, want PYTHON", lang)
	}
	if _, err := model.ParseLanguage("pascal"); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("err = %v, want language not supported", err)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		passed, total, want int
	}{
		{0, 0, 0},
		{0, 5, 0},
		{5, 5, 100},
		{2, 3, 67},
		{1, 3, 33},
		{1, 2, 50},
	}
	for _, tt := range tests {
		if got := model.Score(tt.passed, tt.total); got != tt.want {
			t.Fatalf("Score(%d, %d) = %d, want %d", tt.passed, tt.total, got, tt.want)
		}
	}
}
