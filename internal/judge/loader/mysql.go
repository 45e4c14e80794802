package loader

import (
	"context"
	"database/sql"

	"veloj/internal/judge/model"
	appErr "veloj/pkg/errors"
)

// MySQLLoader reads test cases from the problem_test_cases table.
type MySQLLoader struct {
	db *sql.DB
}

func NewMySQLLoader(db *sql.DB) *MySQLLoader {
	return &MySQLLoader{db: db}
}

func (l *MySQLLoader) SampleTestCases(ctx context.Context, problemKey string) ([]model.TestCase, error) {
	return l.query(ctx, problemKey, true)
}

func (l *MySQLLoader) HiddenTestCases(ctx context.Context, problemKey string) ([]model.TestCase, error) {
	return l.query(ctx, problemKey, false)
}

func (l *MySQLLoader) query(ctx context.Context, problemKey string, sampleOnly bool) ([]model.TestCase, error) {
	query := `SELECT ordinal, input, expected_output, is_sample, weight
		FROM problem_test_cases
		WHERE problem_key = ?`
	if sampleOnly {
		query += ` AND is_sample = 1`
	}
	query += ` ORDER BY ordinal ASC`

	rows, err := l.db.QueryContext(ctx, query, problemKey)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query test cases for %s: %v", problemKey, err)
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.Index, &tc.Input, &tc.Expected, &tc.Sample, &tc.Weight); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan test case row: %v", err)
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate test case rows: %v", err)
	}
	return cases, nil
}
