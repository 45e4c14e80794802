package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"veloj/internal/judge/model"
	appErr "veloj/pkg/errors"
	"veloj/pkg/utils/logger"
)

// SubmissionRepository is the durable sink for judging results.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FetchSubmission loads one submission row. A missing row returns nil with
// no error, so the worker can treat deleted submissions as stale jobs.
func (r *SubmissionRepository) FetchSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	err := r.db.QueryRowContext(ctx,
		`SELECT id, problem_key, user_id, status FROM submissions WHERE id = ?`,
		id,
	).Scan(&sub.ID, &sub.ProblemKey, &sub.UserID, &sub.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "fetch submission %s: %v", id, err)
	}
	return &sub, nil
}

// MarkJudging transitions a pending submission to JUDGING. Redelivered jobs
// whose submission is already JUDGING are fine; the guard only blocks rows
// that are already terminal.
func (r *SubmissionRepository) MarkJudging(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE submissions SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?`,
		model.SubmissionJudging, id, model.SubmissionPending,
	)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "mark submission %s judging: %v", id, err)
	}
	return nil
}

// CompleteSubmission writes the terminal result behind a compare-and-set on
// the status column. It reports whether this call won the write; a false
// return means another worker already finalized the submission and the
// caller must not re-apply side effects.
func (r *SubmissionRepository) CompleteSubmission(ctx context.Context, id string, result *model.JudgingResult) (bool, error) {
	casesJSON, err := json.Marshal(result.Cases)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.JudgeSystemError, "encode case results: %v", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE submissions SET
			status = ?, verdict = ?, score = ?, passed_cases = ?, total_cases = ?,
			avg_time_ms = ?, peak_memory_kb = ?, error_message = ?,
			stdout = ?, stderr = ?, compile_output = ?, cases_json = ?,
			judged_at = NOW(), updated_at = NOW()
		WHERE id = ? AND status IN (?, ?)`,
		model.SubmissionCompleted, result.Verdict, result.Score, result.Passed, result.Total,
		result.AvgTimeMs, result.PeakMemoryKB, result.ErrorMessage,
		result.Stdout, result.Stderr, result.CompileOutput, casesJSON,
		id, model.SubmissionPending, model.SubmissionJudging,
	)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "complete submission %s: %v", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "read affected rows for %s: %v", id, err)
	}
	return affected > 0, nil
}

// BumpProblemCounters increments the problem's submission counter, and the
// accepted counter when the verdict was an accept.
func (r *SubmissionRepository) BumpProblemCounters(ctx context.Context, problemKey string, accepted bool) error {
	query := `UPDATE problems SET submission_count = submission_count + 1 WHERE problem_key = ?`
	if accepted {
		query = `UPDATE problems SET submission_count = submission_count + 1,
			accepted_count = accepted_count + 1 WHERE problem_key = ?`
	}
	if _, err := r.db.ExecContext(ctx, query, problemKey); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "bump counters for %s: %v", problemKey, err)
	}
	return nil
}

// ApplyAcceptedRating applies the Elo update and streak increment for a
// first-class accepted submission. The whole update runs in one
// transaction; a repeat solve of the same problem is skipped.
func (r *SubmissionRepository) ApplyAcceptedRating(ctx context.Context, userID string, problemKey string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "begin rating tx: %v", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logger.Warnf(ctx, "rollback rating tx: %v", err)
		}
	}()

	var solved int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_solved_problems WHERE user_id = ? AND problem_key = ?`,
		userID, problemKey,
	).Scan(&solved)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "check solved state: %v", err)
	}
	if solved > 0 {
		return nil
	}

	var userRating int
	if err := tx.QueryRowContext(ctx,
		`SELECT rating FROM users WHERE id = ? FOR UPDATE`, userID,
	).Scan(&userRating); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "load user rating: %v", err)
	}

	var problemRating int
	if err := tx.QueryRowContext(ctx,
		`SELECT rating FROM problems WHERE problem_key = ?`, problemKey,
	).Scan(&problemRating); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "load problem rating: %v", err)
	}

	delta := acceptedRatingDelta(userRating, problemRating)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET rating = rating + ?, solve_streak = solve_streak + 1 WHERE id = ?`,
		delta, userID,
	); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "apply rating delta: %v", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_solved_problems (user_id, problem_key, solved_at) VALUES (?, ?, NOW())`,
		userID, problemKey,
	); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "record solved problem: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "commit rating tx: %v", err)
	}
	logger.Infof(ctx, "applied rating delta %+d to user %s for problem %s", delta, userID, problemKey)
	return nil
}
