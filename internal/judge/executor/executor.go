package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"veloj/internal/judge/model"
	"veloj/pkg/utils/logger"
)

// outputLimit caps how much stdout/stderr is retained per process.
const outputLimit = 64 * 1024

// killGrace is how long Execute waits for a killed process group to be
// reaped before reporting the kill as an infrastructure failure.
const killGrace = 2 * time.Second

// Config controls the executor.
type Config struct {
	// ScratchRoot is where per-execution work directories are created.
	// Empty means the system temp directory.
	ScratchRoot string            `yaml:"scratchRoot"`
	Profiles    []LanguageProfile `yaml:"profiles"`
}

// Executor compiles and runs untrusted submissions in throwaway scratch
// directories with wall-clock and memory enforcement.
type Executor struct {
	scratchRoot string
	registry    *Registry
}

// NewExecutor builds an executor from a config. A nil profile set uses
// DefaultProfiles.
func NewExecutor(cfg Config) (*Executor, error) {
	profiles := cfg.Profiles
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	registry, err := NewRegistry(profiles)
	if err != nil {
		return nil, err
	}
	return &Executor{
		scratchRoot: cfg.ScratchRoot,
		registry:    registry,
	}, nil
}

// Execute materializes the source, compiles it when the profile says so,
// then runs it once against stdin. The scratch directory is removed on
// every path. The returned outcome always has a closed-set status; Execute
// never returns an error for judgeable conditions.
func (e *Executor) Execute(ctx context.Context, source string, lang model.Language, stdin string, timeLimitMs, memoryLimitMB int64) model.ExecutionOutcome {
	profile, ok := e.registry.Lookup(lang)
	if !ok {
		return model.InfraOutcome(fmt.Sprintf("no language profile for %s", lang))
	}

	dir, err := os.MkdirTemp(e.scratchRoot, "judge-")
	if err != nil {
		return model.InfraOutcome(fmt.Sprintf("create scratch directory: %v", err))
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warnf(ctx, "remove scratch directory %s: %v", dir, rmErr)
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, profile.sourceFile), []byte(source), 0o644); err != nil {
		return model.InfraOutcome(fmt.Sprintf("write source file: %v", err))
	}

	if len(profile.compileArgv) > 0 {
		res := runProcess(ctx, dir, profile.compileArgv, "", profile.compileTimeout)
		switch {
		case res.spawnErr != nil:
			return model.InfraOutcome(fmt.Sprintf("start compiler: %v", res.spawnErr))
		case res.timedOut:
			return model.ExecutionOutcome{
				Status:        model.StatusCompileError,
				CompileOutput: "compilation timed out",
				Message:       "compilation timed out",
			}
		case res.exitCode != 0:
			out := combineOutput(res.stdout, res.stderr)
			return model.ExecutionOutcome{
				Status:        model.StatusCompileError,
				CompileOutput: out,
				Message:       out,
			}
		}
	}

	limit := time.Duration(timeLimitMs) * time.Millisecond
	res := runProcess(ctx, dir, profile.runArgv, stdin, limit)
	switch {
	case res.spawnErr != nil:
		return model.InfraOutcome(fmt.Sprintf("start program: %v", res.spawnErr))
	case res.killFailed:
		return model.InfraOutcome("program did not terminate after kill")
	case res.timedOut:
		// Partial output from a killed run is meaningless and is dropped.
		return model.ExecutionOutcome{
			Status:  model.StatusTimeLimit,
			Message: fmt.Sprintf("time limit of %dms exceeded", timeLimitMs),
			TimeMs:  timeLimitMs,
		}
	case res.exitCode != 0:
		return model.ExecutionOutcome{
			Status:   model.StatusRuntimeError,
			Stdout:   res.stdout,
			Stderr:   res.stderr,
			Message:  runtimeErrorMessage(res),
			TimeMs:   res.durationMs,
			MemoryKB: res.maxRSSKB,
		}
	case memoryLimitMB > 0 && res.maxRSSKB > memoryLimitMB*1024:
		return model.ExecutionOutcome{
			Status:   model.StatusMemoryLimit,
			Stderr:   res.stderr,
			Message:  fmt.Sprintf("memory limit of %dMB exceeded", memoryLimitMB),
			TimeMs:   res.durationMs,
			MemoryKB: res.maxRSSKB,
		}
	default:
		return model.ExecutionOutcome{
			Status:   model.StatusOK,
			Stdout:   res.stdout,
			Stderr:   res.stderr,
			TimeMs:   res.durationMs,
			MemoryKB: res.maxRSSKB,
		}
	}
}

// RunAll executes the submission once per test case, sequentially. The
// compile step repeats per case for interpreted languages only by virtue of
// being absent; compiled languages pay it each case, which keeps every case
// hermetic.
func (e *Executor) RunAll(ctx context.Context, job model.SubmissionJob, cases []model.TestCase) ([]model.ExecutionOutcome, error) {
	outcomes := make([]model.ExecutionOutcome, 0, len(cases))
	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, e.Execute(ctx, job.SourceCode, job.Language, tc.Input, job.TimeLimitMs, job.MemoryLimitMB))
	}
	return outcomes, nil
}

type processResult struct {
	exitCode   int
	stdout     string
	stderr     string
	timedOut   bool
	killFailed bool
	durationMs int64
	maxRSSKB   int64
	spawnErr   error
}

// runProcess starts argv in dir with stdin attached and enforces a
// wall-clock limit. On timeout the whole process group is killed so runtime
// children (the JVM, node workers) cannot outlive the run.
func runProcess(ctx context.Context, dir string, argv []string, stdin string, limit time.Duration) processResult {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(stdin)
	stdout := newLimitedBuffer(outputLimit)
	stderr := newLimitedBuffer(outputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = sysProcAttr()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return processResult{spawnErr: err}
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	var res processResult
	select {
	case <-waitCh:
	case <-timer.C:
		res.timedOut = true
		res.killFailed = !killAndReap(cmd.Process.Pid, waitCh)
	case <-ctx.Done():
		res.timedOut = true
		res.killFailed = !killAndReap(cmd.Process.Pid, waitCh)
	}
	res.durationMs = time.Since(start).Milliseconds()
	res.stdout = stdout.String()
	res.stderr = stderr.String()
	if state := cmd.ProcessState; state != nil {
		res.exitCode = state.ExitCode()
		res.maxRSSKB = peakRSSKB(state)
	}
	return res
}

// killAndReap kills the process group and waits a bounded grace period for
// the wait goroutine to observe the exit. Returns false if the process is
// still unreaped afterwards.
func killAndReap(pid int, waitCh <-chan error) bool {
	killProcessGroup(pid)
	select {
	case <-waitCh:
		return true
	case <-time.After(killGrace):
		return false
	}
}

func runtimeErrorMessage(res processResult) string {
	msg := strings.TrimSpace(res.stderr)
	if msg == "" {
		msg = fmt.Sprintf("process exited with code %d", res.exitCode)
	}
	return msg
}

func combineOutput(stdout, stderr string) string {
	out := strings.TrimSpace(stderr)
	if out == "" {
		out = strings.TrimSpace(stdout)
	}
	if out == "" {
		out = "compilation failed"
	}
	return out
}

// limitedBuffer keeps the first cap bytes written and silently drops the
// rest, so a submission printing gigabytes cannot exhaust worker memory.
type limitedBuffer struct {
	limit int
	buf   []byte
}

func newLimitedBuffer(limit int) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if remaining := b.limit - len(b.buf); remaining > 0 {
		if len(p) > remaining {
			b.buf = append(b.buf, p[:remaining]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}
