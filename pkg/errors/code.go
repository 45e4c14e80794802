package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem data errors
// 13000-13999: Submission & Judge errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError  ErrorCode = 10100
	RecordNotFound ErrorCode = 10101

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// ========== Problem Data Errors (12000-12999) ==========

	ProblemNotFound     ErrorCode = 12000
	TestCaseNotFound    ErrorCode = 12100
	DataPackUnavailable ErrorCode = 12110
	DataPackCorrupted   ErrorCode = 12111

	// ========== Submission & Judge Errors (13000-13999) ==========

	SubmissionNotFound   ErrorCode = 13000
	LanguageNotSupported ErrorCode = 13003

	JudgeQueueFull      ErrorCode = 13100
	JudgeSystemError    ErrorCode = 13101
	CompilationError    ErrorCode = 13102
	RuntimeError        ErrorCode = 13103
	TimeLimitExceeded   ErrorCode = 13104
	MemoryLimitExceeded ErrorCode = 13105
	WrongAnswer         ErrorCode = 13107

	// Remote judge errors (13300-13399)
	RemoteJudgeUnavailable ErrorCode = 13300
	RemoteJudgeRejected    ErrorCode = 13301
	RemoteJudgeTimeout     ErrorCode = 13302
)

var codeMessages = map[ErrorCode]string{
	Success:             "success",
	InternalServerError: "internal server error",
	InvalidParams:       "invalid parameters",
	NotFound:            "resource not found",
	Unauthorized:        "unauthorized",
	ServiceUnavailable:  "service unavailable",
	Timeout:             "operation timed out",

	DatabaseError:  "database error",
	RecordNotFound: "record not found",
	CacheError:     "cache error",

	ValidationFailed: "validation failed",

	ProblemNotFound:     "problem not found",
	TestCaseNotFound:    "test case not found",
	DataPackUnavailable: "problem data pack unavailable",
	DataPackCorrupted:   "problem data pack corrupted",

	SubmissionNotFound:   "submission not found",
	LanguageNotSupported: "language not supported",

	JudgeQueueFull:      "judge queue is full",
	JudgeSystemError:    "judge system error",
	CompilationError:    "compilation error",
	RuntimeError:        "runtime error",
	TimeLimitExceeded:   "time limit exceeded",
	MemoryLimitExceeded: "memory limit exceeded",
	WrongAnswer:         "wrong answer",

	RemoteJudgeUnavailable: "remote judge unavailable",
	RemoteJudgeRejected:    "remote judge rejected the batch",
	RemoteJudgeTimeout:     "remote judge result retrieval timed out",
}

// Message returns the default human-readable message for a code.
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "unknown error"
}
