package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"veloj/internal/judge/model"
	appErr "veloj/pkg/errors"
)

const (
	statusKeyPrefix = "judge:status:"
	statusTTL       = 24 * time.Hour
)

// LiveStatus is the transient judging state served to pollers while (and
// shortly after) a submission runs.
type LiveStatus struct {
	SubmissionID string                 `json:"submission_id"`
	Status       model.SubmissionStatus `json:"status"`
	Verdict      model.Verdict          `json:"verdict,omitempty"`
	Score        int                    `json:"score,omitempty"`
	Passed       int                    `json:"passed,omitempty"`
	Total        int                    `json:"total,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// StatusRepository keeps live judging status in redis with a TTL so
// abandoned entries expire on their own.
type StatusRepository struct {
	client *redis.Client
}

func NewStatusRepository(client *redis.Client) *StatusRepository {
	return &StatusRepository{client: client}
}

// SetStatus overwrites the live status of a submission.
func (r *StatusRepository) SetStatus(ctx context.Context, status LiveStatus) error {
	status.UpdatedAt = time.Now()
	data, err := json.Marshal(status)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "encode live status: %v", err)
	}
	if err := r.client.Set(ctx, statusKeyPrefix+status.SubmissionID, data, statusTTL).Err(); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store live status for %s: %v", status.SubmissionID, err)
	}
	return nil
}

// GetStatus loads the live status of a submission. A missing entry returns
// nil with no error.
func (r *StatusRepository) GetStatus(ctx context.Context, submissionID string) (*LiveStatus, error) {
	data, err := r.client.Get(ctx, statusKeyPrefix+submissionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load live status for %s: %v", submissionID, err)
	}
	var status LiveStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "decode live status for %s: %v", submissionID, err)
	}
	return &status, nil
}
