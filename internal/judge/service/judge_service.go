// Package service orchestrates the judging of one submission from queued
// job to persisted verdict.
package service

import (
	"context"
	"fmt"

	"veloj/internal/judge/events"
	"veloj/internal/judge/loader"
	"veloj/internal/judge/model"
	"veloj/internal/judge/queue"
	"veloj/internal/judge/repository"
	appErr "veloj/pkg/errors"
	"veloj/pkg/utils/logger"
)

// TestCaseRunner executes a submission against a case set. The local
// sandbox and the remote batch judge both satisfy it. A returned error
// means the whole run failed for infrastructure reasons and may be retried;
// judgeable failures are encoded in the outcomes.
type TestCaseRunner interface {
	RunAll(ctx context.Context, job model.SubmissionJob, cases []model.TestCase) ([]model.ExecutionOutcome, error)
}

// ResultSink is the durable store judging writes through.
type ResultSink interface {
	FetchSubmission(ctx context.Context, id string) (*model.Submission, error)
	MarkJudging(ctx context.Context, id string) error
	CompleteSubmission(ctx context.Context, id string, result *model.JudgingResult) (bool, error)
	BumpProblemCounters(ctx context.Context, problemKey string, accepted bool) error
	ApplyAcceptedRating(ctx context.Context, userID, problemKey string) error
}

// StatusStore keeps the transient judging state pollers read.
type StatusStore interface {
	SetStatus(ctx context.Context, status repository.LiveStatus) error
}

// JudgeService judges submissions. It is safe for concurrent use; each
// HandleJob call is independent.
type JudgeService struct {
	loader loader.TestCaseLoader
	runner TestCaseRunner
	sink   ResultSink
	status StatusStore
	hub    *events.Hub
}

// NewJudgeService wires the orchestrator. The hub may be nil when no
// real-time surface is running.
func NewJudgeService(l loader.TestCaseLoader, runner TestCaseRunner, sink ResultSink, status StatusStore, hub *events.Hub) (*JudgeService, error) {
	if l == nil {
		return nil, fmt.Errorf("test case loader is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("test case runner is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("result sink is required")
	}
	if status == nil {
		return nil, fmt.Errorf("status store is required")
	}
	return &JudgeService{
		loader: l,
		runner: runner,
		sink:   sink,
		status: status,
		hub:    hub,
	}, nil
}

// HandleJob is the queue handler: decode, judge, persist. A non-nil return
// asks the queue to redeliver; terminal outcomes always return nil.
func (s *JudgeService) HandleJob(ctx context.Context, qj queue.Job) (err error) {
	job, decodeErr := model.DecodeSubmissionJob(qj.Payload)
	if decodeErr != nil {
		// Malformed payloads never become valid on retry.
		logger.Errorf(ctx, "drop undecodable job %s: %v", qj.ID, decodeErr)
		return nil
	}

	log := logger.WithContext(ctx).Sugar().With(
		"submission_id", job.SubmissionID,
		"problem_key", job.ProblemKey,
	)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic while judging: %v", r)
			s.finalize(ctx, job, &model.JudgingResult{
				Verdict:      model.VerdictRuntimeError,
				ErrorMessage: "internal judging failure",
			})
			err = nil
		}
	}()

	sub, err := s.sink.FetchSubmission(ctx, job.SubmissionID)
	if err != nil {
		return err
	}
	if sub == nil {
		log.Warnf("submission no longer exists, dropping job")
		return nil
	}
	if sub.Status == model.SubmissionCompleted {
		log.Infof("submission already judged, dropping redelivered job")
		return nil
	}

	if err := s.sink.MarkJudging(ctx, job.SubmissionID); err != nil {
		return err
	}
	if err := s.status.SetStatus(ctx, repository.LiveStatus{
		SubmissionID: job.SubmissionID,
		Status:       model.SubmissionJudging,
	}); err != nil {
		log.Warnf("update live status: %v", err)
	}

	cases, err := loader.Select(ctx, s.loader, job)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		log.Warnf("no test cases for problem, finalizing as runtime error")
		s.finalize(ctx, job, &model.JudgingResult{
			Verdict:      model.VerdictRuntimeError,
			ErrorMessage: fmt.Sprintf("no test cases available for problem %s", job.ProblemKey),
		})
		return nil
	}

	outcomes, err := s.runner.RunAll(ctx, job, cases)
	if err != nil {
		return err
	}
	if len(outcomes) != len(cases) {
		return appErr.Newf(appErr.JudgeSystemError,
			"runner returned %d outcomes for %d cases", len(outcomes), len(cases))
	}

	result, infraErr := aggregate(cases, outcomes)
	if infraErr != nil {
		return infraErr
	}

	s.finalize(ctx, job, result)
	log.Infof("judged: verdict=%s score=%d passed=%d/%d",
		result.Verdict, result.Score, result.Passed, result.Total)
	return nil
}

// aggregate folds per-case outcomes into the submission result. Every case
// was executed; the verdict is decided by the first failing case and does
// not improve afterwards. An infra outcome anywhere aborts aggregation so
// the job can be retried with complete results.
func aggregate(cases []model.TestCase, outcomes []model.ExecutionOutcome) (*model.JudgingResult, error) {
	result := &model.JudgingResult{
		Verdict: model.VerdictAccepted,
		Total:   len(cases),
		Cases:   make([]model.CaseResult, 0, len(cases)),
	}

	var totalTime int64
	decided := false
	for i, outcome := range outcomes {
		if outcome.Status == model.StatusInfraError {
			return nil, appErr.Newf(appErr.JudgeSystemError,
				"case %d failed to execute: %s", cases[i].Index, outcome.Message)
		}

		passed := outcome.Status == model.StatusOK && OutputsEqual(outcome.Stdout, cases[i].Expected)
		cr := model.CaseResult{
			Case:     cases[i].Index,
			Input:    cases[i].Input,
			Expected: cases[i].Expected,
			Actual:   outcome.Stdout,
			Passed:   passed,
			TimeMs:   outcome.TimeMs,
			MemoryKB: outcome.MemoryKB,
		}
		if !passed {
			cr.Error = outcome.Message
		}
		result.Cases = append(result.Cases, cr)

		totalTime += outcome.TimeMs
		if outcome.MemoryKB > result.PeakMemoryKB {
			result.PeakMemoryKB = outcome.MemoryKB
		}
		if passed {
			result.Passed++
			continue
		}
		if decided {
			continue
		}
		decided = true
		if outcome.Status == model.StatusOK {
			result.Verdict = model.VerdictWrongAnswer
		} else {
			result.Verdict = verdictFor(outcome.Status)
		}
		result.ErrorMessage = caseFailureMessage(cases[i].Index, outcome)
		result.Stdout = outcome.Stdout
		result.Stderr = outcome.Stderr
		result.CompileOutput = outcome.CompileOutput
	}

	result.AvgTimeMs = totalTime / int64(len(outcomes))
	result.Score = model.Score(result.Passed, result.Total)
	if !decided && len(outcomes) > 0 {
		last := outcomes[len(outcomes)-1]
		result.Stdout = last.Stdout
		result.Stderr = last.Stderr
	}
	return result, nil
}

// finalize persists the terminal result and applies the side effects that
// must happen exactly once. The compare-and-set on the submission row is
// the idempotency gate: only the winning write bumps counters, applies
// rating and publishes events.
func (s *JudgeService) finalize(ctx context.Context, job model.SubmissionJob, result *model.JudgingResult) {
	log := logger.WithContext(ctx).Sugar().With("submission_id", job.SubmissionID)

	won, err := s.sink.CompleteSubmission(ctx, job.SubmissionID, result)
	if err != nil {
		log.Errorf("persist result: %v", err)
		return
	}
	if !won {
		log.Infof("submission was finalized concurrently, skipping side effects")
		return
	}

	if err := s.status.SetStatus(ctx, repository.LiveStatus{
		SubmissionID: job.SubmissionID,
		Status:       model.SubmissionCompleted,
		Verdict:      result.Verdict,
		Score:        result.Score,
		Passed:       result.Passed,
		Total:        result.Total,
	}); err != nil {
		log.Warnf("update live status: %v", err)
	}

	if !job.SampleOnly {
		accepted := result.Verdict == model.VerdictAccepted
		if err := s.sink.BumpProblemCounters(ctx, job.ProblemKey, accepted); err != nil {
			log.Errorf("bump problem counters: %v", err)
		}
		if accepted {
			sub, err := s.sink.FetchSubmission(ctx, job.SubmissionID)
			if err != nil || sub == nil {
				log.Errorf("load submission for rating: %v", err)
			} else if err := s.sink.ApplyAcceptedRating(ctx, sub.UserID, job.ProblemKey); err != nil {
				log.Errorf("apply rating: %v", err)
			}
		}
	}

	s.hub.PublishCompleted(model.CompletedEvent{
		SubmissionID: job.SubmissionID,
		Verdict:      result.Verdict,
		TimeMs:       result.AvgTimeMs,
		MemoryKB:     result.PeakMemoryKB,
		Score:        result.Score,
		Passed:       result.Passed,
		Total:        result.Total,
	})
}
