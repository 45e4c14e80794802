package model

import (
	"encoding/json"

	appErr "veloj/pkg/errors"
)

// SubmissionJob is the unit of work delivered to a judging worker.
// It is created by the API layer at submit time and never mutated.
type SubmissionJob struct {
	SubmissionID  string   `json:"submission_id"`
	ProblemKey    string   `json:"problem_key"`
	SourceCode    string   `json:"source_code"`
	Language      Language `json:"language"`
	SampleOnly    bool     `json:"sample_only"`
	TimeLimitMs   int64    `json:"time_limit_ms"`
	MemoryLimitMB int64    `json:"memory_limit_mb"`
}

const (
	defaultTimeLimitMs   = 2000
	defaultMemoryLimitMB = 256
)

// DecodeSubmissionJob parses and validates a queue payload.
// Untyped wire data never reaches business logic: a payload that does not
// decode into a valid job is rejected here.
func DecodeSubmissionJob(payload []byte) (SubmissionJob, error) {
	var job SubmissionJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return SubmissionJob{}, appErr.Wrapf(err, appErr.InvalidParams, "decode submission job failed")
	}
	if err := job.Validate(); err != nil {
		return SubmissionJob{}, err
	}
	if job.TimeLimitMs <= 0 {
		job.TimeLimitMs = defaultTimeLimitMs
	}
	if job.MemoryLimitMB <= 0 {
		job.MemoryLimitMB = defaultMemoryLimitMB
	}
	return job, nil
}

// Validate checks required fields.
func (j SubmissionJob) Validate() error {
	if j.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if j.ProblemKey == "" {
		return appErr.ValidationError("problem_key", "required")
	}
	if j.SourceCode == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if _, err := ParseLanguage(string(j.Language)); err != nil {
		return err
	}
	return nil
}

// Encode serializes the job for the queue.
func (j SubmissionJob) Encode() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "encode submission job failed")
	}
	return data, nil
}
