package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"veloj/internal/judge/model"
	"veloj/internal/judge/queue"
	"veloj/internal/judge/repository"
	"veloj/internal/judge/service"
)

type fakeLoader struct {
	samples []model.TestCase
	hidden  []model.TestCase
	err     error
}

func (f *fakeLoader) SampleTestCases(ctx context.Context, problemKey string) ([]model.TestCase, error) {
	return f.samples, f.err
}

func (f *fakeLoader) HiddenTestCases(ctx context.Context, problemKey string) ([]model.TestCase, error) {
	return f.hidden, f.err
}

type fakeRunner struct {
	outcomes []model.ExecutionOutcome
	err      error
	calls    int
}

func (f *fakeRunner) RunAll(ctx context.Context, job model.SubmissionJob, cases []model.TestCase) ([]model.ExecutionOutcome, error) {
	f.calls++
	return f.outcomes, f.err
}

type fakeSink struct {
	mu sync.Mutex

	submission    *model.Submission
	completeWon   bool
	completeErr   error
	markedJudging []string
	completed     map[string]*model.JudgingResult
	counterCalls  []bool
	ratingUsers   []string
}

func newFakeSink(sub *model.Submission) *fakeSink {
	return &fakeSink{
		submission:  sub,
		completeWon: true,
		completed:   make(map[string]*model.JudgingResult),
	}
}

func (f *fakeSink) FetchSubmission(ctx context.Context, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submission, nil
}

func (f *fakeSink) MarkJudging(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedJudging = append(f.markedJudging, id)
	return nil
}

func (f *fakeSink) CompleteSubmission(ctx context.Context, id string, result *model.JudgingResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return false, f.completeErr
	}
	f.completed[id] = result
	return f.completeWon, nil
}

func (f *fakeSink) BumpProblemCounters(ctx context.Context, problemKey string, accepted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counterCalls = append(f.counterCalls, accepted)
	return nil
}

func (f *fakeSink) ApplyAcceptedRating(ctx context.Context, userID, problemKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratingUsers = append(f.ratingUsers, userID)
	return nil
}

type fakeStatusStore struct {
	mu       sync.Mutex
	statuses []repository.LiveStatus
}

func (f *fakeStatusStore) SetStatus(ctx context.Context, status repository.LiveStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeStatusStore) last() (repository.LiveStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return repository.LiveStatus{}, false
	}
	return f.statuses[len(f.statuses)-1], true
}

func queuedJob(t *testing.T, job model.SubmissionJob) queue.Job {
	t.Helper()
	payload, err := job.Encode()
	if err != nil {
		t.Fatalf("encode job: %v", err)
	}
	return queue.Job{ID: "job-" + job.SubmissionID, Payload: payload}
}

func baseJob() model.SubmissionJob {
	return model.SubmissionJob{
		SubmissionID: "sub-1",
		ProblemKey:   "two-sum",
		SourceCode:   "print(1)",
		Language:     model.LangPython,
		TimeLimitMs:  2000,
	}
}

func hiddenCases(n int) []model.TestCase {
	cases := make([]model.TestCase, n)
	for i := range cases {
		cases[i] = model.TestCase{
			Index:    i + 1,
			Input:    fmt.Sprintf("in-%d", i+1),
			Expected: fmt.Sprintf("out-%d", i+1),
		}
	}
	return cases
}

func okOutcomes(cases []model.TestCase) []model.ExecutionOutcome {
	outcomes := make([]model.ExecutionOutcome, len(cases))
	for i, tc := range cases {
		outcomes[i] = model.ExecutionOutcome{
			Status:   model.StatusOK,
			Stdout:   tc.Expected,
			TimeMs:   int64(10 * (i + 1)),
			MemoryKB: int64(1000 * (i + 1)),
		}
	}
	return outcomes
}

func newService(t *testing.T, l *fakeLoader, r service.TestCaseRunner, sink *fakeSink, status *fakeStatusStore) *service.JudgeService {
	t.Helper()
	svc, err := service.NewJudgeService(l, r, sink, status, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestHandleJobAccepted(t *testing.T) {
	cases := hiddenCases(3)
	sink := newFakeSink(&model.Submission{ID: "sub-1", UserID: "user-7", Status: model.SubmissionPending})
	status := &fakeStatusStore{}
	svc := newService(t,
		&fakeLoader{hidden: cases},
		&fakeRunner{outcomes: okOutcomes(cases)},
		sink, status)

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err != nil {
		t.Fatalf("handle job: %v", err)
	}

	result := sink.completed["sub-1"]
	if result == nil {
		t.Fatal("submission was not completed")
	}
	if result.Verdict != model.VerdictAccepted {
		t.Fatalf("verdict = %s, want accepted", result.Verdict)
	}
	if result.Score != 100 || result.Passed != 3 || result.Total != 3 {
		t.Fatalf("score=%d passed=%d total=%d", result.Score, result.Passed, result.Total)
	}
	// avg over all cases: (10+20+30)/3, peak is the max.
	if result.AvgTimeMs != 20 {
		t.Fatalf("avg time = %d, want 20", result.AvgTimeMs)
	}
	if result.PeakMemoryKB != 3000 {
		t.Fatalf("peak memory = %d, want 3000", result.PeakMemoryKB)
	}
	if len(sink.counterCalls) != 1 || !sink.counterCalls[0] {
		t.Fatalf("counter calls = %v, want one accepted bump", sink.counterCalls)
	}
	if len(sink.ratingUsers) != 1 || sink.ratingUsers[0] != "user-7" {
		t.Fatalf("rating users = %v, want [user-7]", sink.ratingUsers)
	}
	last, ok := status.last()
	if !ok || last.Status != model.SubmissionCompleted || last.Verdict != model.VerdictAccepted {
		t.Fatalf("final live status = %+v", last)
	}
}

func TestHandleJobWrongAnswer(t *testing.T) {
	cases := hiddenCases(3)
	outcomes := okOutcomes(cases)
	outcomes[1].Stdout = "nope"

	sink := newFakeSink(&model.Submission{ID: "sub-1", UserID: "user-7", Status: model.SubmissionPending})
	svc := newService(t,
		&fakeLoader{hidden: cases},
		&fakeRunner{outcomes: outcomes},
		sink, &fakeStatusStore{})

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err != nil {
		t.Fatalf("handle job: %v", err)
	}

	result := sink.completed["sub-1"]
	if result.Verdict != model.VerdictWrongAnswer {
		t.Fatalf("verdict = %s, want wrong answer", result.Verdict)
	}
	if result.Passed != 2 || result.Score != 67 {
		t.Fatalf("passed=%d score=%d, want 2 and 67", result.Passed, result.Score)
	}
	if result.ErrorMessage != "Test case 2 failed" {
		t.Fatalf("error message = %q, want it to name the failing case", result.ErrorMessage)
	}
	if len(result.Cases) != 3 {
		t.Fatalf("recorded %d case results, want all 3", len(result.Cases))
	}
	if len(sink.counterCalls) != 1 || sink.counterCalls[0] {
		t.Fatalf("counter calls = %v, want one rejected bump", sink.counterCalls)
	}
	if len(sink.ratingUsers) != 0 {
		t.Fatal("rating must not apply to a rejected submission")
	}
}

func TestHandleJobVerdictLocksAtFirstFailure(t *testing.T) {
	cases := hiddenCases(3)
	outcomes := okOutcomes(cases)
	outcomes[0] = model.ExecutionOutcome{Status: model.StatusTimeLimit, TimeMs: 2000, Message: "time limit exceeded"}
	outcomes[2] = model.ExecutionOutcome{Status: model.StatusRuntimeError, Message: "segfault"}

	sink := newFakeSink(&model.Submission{ID: "sub-1", Status: model.SubmissionPending})
	svc := newService(t,
		&fakeLoader{hidden: cases},
		&fakeRunner{outcomes: outcomes},
		sink, &fakeStatusStore{})

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err != nil {
		t.Fatalf("handle job: %v", err)
	}

	result := sink.completed["sub-1"]
	if result.Verdict != model.VerdictTimeLimitExceeded {
		t.Fatalf("verdict = %s, want the first failure's verdict", result.Verdict)
	}
	if result.Passed != 1 {
		t.Fatalf("passed = %d, want 1", result.Passed)
	}
	if result.ErrorMessage != "Test case 1: Time limit exceeded" {
		t.Fatalf("error message = %q, want the time-limit diagnostic", result.ErrorMessage)
	}
}

func TestHandleJobCompileErrorSurfacesCompilerOutput(t *testing.T) {
	cases := hiddenCases(2)
	outcomes := okOutcomes(cases)
	outcomes[0] = model.ExecutionOutcome{
		Status:        model.StatusCompileError,
		CompileOutput: "main.cpp:3:1: error: expected ';'",
	}

	sink := newFakeSink(&model.Submission{ID: "sub-1", Status: model.SubmissionPending})
	svc := newService(t,
		&fakeLoader{hidden: cases},
		&fakeRunner{outcomes: outcomes},
		sink, &fakeStatusStore{})

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err != nil {
		t.Fatalf("handle job: %v", err)
	}

	result := sink.completed["sub-1"]
	if result.Verdict != model.VerdictCompilationError {
		t.Fatalf("verdict = %s, want compilation error", result.Verdict)
	}
	if result.ErrorMessage != "main.cpp:3:1: error: expected ';'" {
		t.Fatalf("error message = %q, want the raw compiler output", result.ErrorMessage)
	}
}

func TestHandleJobInfraOutcomeIsRetryable(t *testing.T) {
	cases := hiddenCases(2)
	outcomes := okOutcomes(cases)
	outcomes[1] = model.ExecutionOutcome{Status: model.StatusInfraError, Message: "sandbox spawn failed"}

	sink := newFakeSink(&model.Submission{ID: "sub-1", Status: model.SubmissionPending})
	svc := newService(t,
		&fakeLoader{hidden: cases},
		&fakeRunner{outcomes: outcomes},
		sink, &fakeStatusStore{})

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err == nil {
		t.Fatal("expected a retryable error for an infra outcome")
	}
	if len(sink.completed) != 0 {
		t.Fatal("submission must not be finalized on infra failure")
	}
}

func TestHandleJobEmptyCaseSetIsTerminal(t *testing.T) {
	sink := newFakeSink(&model.Submission{ID: "sub-1", Status: model.SubmissionPending})
	runner := &fakeRunner{}
	svc := newService(t, &fakeLoader{}, runner, sink, &fakeStatusStore{})

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err != nil {
		t.Fatalf("handle job: %v", err)
	}
	result := sink.completed["sub-1"]
	if result == nil || result.Verdict != model.VerdictRuntimeError {
		t.Fatalf("result = %+v, want terminal runtime error", result)
	}
	if runner.calls != 0 {
		t.Fatal("runner must not run without test cases")
	}
}

func TestHandleJobStaleSubmissionDropped(t *testing.T) {
	sink := newFakeSink(nil)
	runner := &fakeRunner{}
	svc := newService(t, &fakeLoader{hidden: hiddenCases(1)}, runner, sink, &fakeStatusStore{})

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err != nil {
		t.Fatalf("handle job: %v", err)
	}
	if runner.calls != 0 || len(sink.completed) != 0 {
		t.Fatal("stale submission must be a no-op")
	}
}

func TestHandleJobAlreadyCompletedDropped(t *testing.T) {
	sink := newFakeSink(&model.Submission{ID: "sub-1", Status: model.SubmissionCompleted})
	runner := &fakeRunner{}
	svc := newService(t, &fakeLoader{hidden: hiddenCases(1)}, runner, sink, &fakeStatusStore{})

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err != nil {
		t.Fatalf("handle job: %v", err)
	}
	if runner.calls != 0 || len(sink.markedJudging) != 0 {
		t.Fatal("redelivered job for a judged submission must be a no-op")
	}
}

func TestHandleJobLostCompareAndSetSkipsSideEffects(t *testing.T) {
	cases := hiddenCases(1)
	sink := newFakeSink(&model.Submission{ID: "sub-1", UserID: "user-7", Status: model.SubmissionPending})
	sink.completeWon = false
	svc := newService(t,
		&fakeLoader{hidden: cases},
		&fakeRunner{outcomes: okOutcomes(cases)},
		sink, &fakeStatusStore{})

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err != nil {
		t.Fatalf("handle job: %v", err)
	}
	if len(sink.counterCalls) != 0 || len(sink.ratingUsers) != 0 {
		t.Fatal("losing the completion race must skip counters and rating")
	}
}

func TestHandleJobSampleOnlySkipsCountersAndRating(t *testing.T) {
	sample := []model.TestCase{{Index: 1, Input: "a", Expected: "b"}}
	sink := newFakeSink(&model.Submission{ID: "sub-1", UserID: "user-7", Status: model.SubmissionPending})
	runner := &fakeRunner{outcomes: []model.ExecutionOutcome{{Status: model.StatusOK, Stdout: "b"}}}
	loader := &fakeLoader{samples: sample, hidden: hiddenCases(5)}
	svc := newService(t, loader, runner, sink, &fakeStatusStore{})

	job := baseJob()
	job.SampleOnly = true
	if err := svc.HandleJob(context.Background(), queuedJob(t, job)); err != nil {
		t.Fatalf("handle job: %v", err)
	}

	result := sink.completed["sub-1"]
	if result == nil || result.Total != 1 {
		t.Fatalf("result = %+v, want one sample case judged", result)
	}
	if len(sink.counterCalls) != 0 || len(sink.ratingUsers) != 0 {
		t.Fatal("sample runs must not touch counters or rating")
	}
}

func TestHandleJobUndecodablePayloadDropped(t *testing.T) {
	sink := newFakeSink(&model.Submission{ID: "sub-1", Status: model.SubmissionPending})
	runner := &fakeRunner{}
	svc := newService(t, &fakeLoader{}, runner, sink, &fakeStatusStore{})

	err := svc.HandleJob(context.Background(), queue.Job{ID: "job-x", Payload: []byte("{not json")})
	if err != nil {
		t.Fatalf("undecodable payload must not be retried, got %v", err)
	}
	if runner.calls != 0 {
		t.Fatal("runner must not run for an undecodable payload")
	}
}

func TestHandleJobRunnerPanicFinalizesSubmission(t *testing.T) {
	sink := newFakeSink(&model.Submission{ID: "sub-1", Status: model.SubmissionPending})
	svc := newService(t, &fakeLoader{hidden: hiddenCases(1)}, panickingRunner{}, sink, &fakeStatusStore{})

	if err := svc.HandleJob(context.Background(), queuedJob(t, baseJob())); err != nil {
		t.Fatalf("panic must surface as a terminal result, got %v", err)
	}
	result := sink.completed["sub-1"]
	if result == nil || result.Verdict != model.VerdictRuntimeError {
		t.Fatalf("result = %+v, want terminal runtime error", result)
	}
}

type panickingRunner struct{}

func (panickingRunner) RunAll(ctx context.Context, job model.SubmissionJob, cases []model.TestCase) ([]model.ExecutionOutcome, error) {
	panic("executor blew up")
}
