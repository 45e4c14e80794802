package model

// OutcomeStatus classifies the result of running one test case.
// It is a closed enum: execution layers return exactly one of these values,
// never a free-text signal to be parsed downstream.
type OutcomeStatus string

const (
	StatusOK           OutcomeStatus = "ok"
	StatusWrongOutput  OutcomeStatus = "wrong-output"
	StatusCompileError OutcomeStatus = "compile-error"
	StatusRuntimeError OutcomeStatus = "runtime-error"
	StatusTimeLimit    OutcomeStatus = "time-limit-exceeded"
	StatusMemoryLimit  OutcomeStatus = "memory-limit-exceeded"
	StatusInfraError   OutcomeStatus = "infra-error"
)

// ExecutionOutcome is the result of running one test case through an
// executor or the remote batch judge.
type ExecutionOutcome struct {
	Status        OutcomeStatus
	Stdout        string
	Stderr        string
	CompileOutput string
	// Message carries diagnostic text not attributable to the program's own
	// output, e.g. a remote status description or an infra error.
	Message  string
	TimeMs   int64
	MemoryKB int64
}

// InfraOutcome builds an infra-error outcome with a diagnostic message.
func InfraOutcome(msg string) ExecutionOutcome {
	return ExecutionOutcome{Status: StatusInfraError, Message: msg}
}
