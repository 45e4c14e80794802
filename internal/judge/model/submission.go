package model

// SubmissionStatus is the lifecycle state of a submission row.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "PENDING"
	SubmissionJudging   SubmissionStatus = "JUDGING"
	SubmissionCompleted SubmissionStatus = "COMPLETED"
)

// Submission is the read-side view of a submission row, fetched before
// judging to detect stale jobs.
type Submission struct {
	ID         string
	ProblemKey string
	UserID     string
	Status     SubmissionStatus
}

// CompletedEvent is the real-time payload published when a submission
// reaches a terminal verdict.
type CompletedEvent struct {
	SubmissionID string  `json:"submission_id"`
	Verdict      Verdict `json:"verdict"`
	TimeMs       int64   `json:"time_ms"`
	MemoryKB     int64   `json:"memory_kb"`
	Score        int     `json:"score"`
	Passed       int     `json:"passed"`
	Total        int     `json:"total"`
}

// EventCompleted is the canonical completion event name; EventCompletedLegacy
// is kept for clients that still listen on the old name.
const (
	EventCompleted       = "submission:completed"
	EventCompletedLegacy = "submission.completed"
)
