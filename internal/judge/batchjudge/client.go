package batchjudge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"veloj/internal/judge/model"
	appErr "veloj/pkg/errors"
	"veloj/pkg/utils/config"
)

// Config controls the remote batch judge client.
type Config struct {
	BaseURL string `yaml:"baseUrl"`
	// AuthToken is sent as X-Auth-Token when set.
	AuthToken      string          `yaml:"authToken"`
	RequestTimeout config.Duration `yaml:"requestTimeout"`
	PollInterval   config.Duration `yaml:"pollInterval"`
	// PollTimeout bounds the whole wait for a batch to finish.
	PollTimeout config.Duration `yaml:"pollTimeout"`
}

// Client submits every test case of a job as one remote batch and polls the
// tokens until all submissions reach a terminal status.
type Client struct {
	baseURL      string
	authToken    string
	httpClient   *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewClient validates the config and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("batch judge base URL is required")
	}
	requestTimeout := cfg.RequestTimeout.Std()
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	pollInterval := cfg.PollInterval.Std()
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	pollTimeout := cfg.PollTimeout.Std()
	if pollTimeout <= 0 {
		pollTimeout = 2 * time.Minute
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		authToken:    cfg.AuthToken,
		httpClient:   &http.Client{Timeout: requestTimeout},
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}, nil
}

type submissionRequest struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit    int64   `json:"memory_limit,omitempty"`
}

type batchRequest struct {
	Submissions []submissionRequest `json:"submissions"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type remoteStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type remoteSubmission struct {
	Token         string       `json:"token"`
	Status        remoteStatus `json:"status"`
	Stdout        string       `json:"stdout"`
	Stderr        string       `json:"stderr"`
	CompileOutput string       `json:"compile_output"`
	Message       string       `json:"message"`
	Time          string       `json:"time"`
	Memory        int64        `json:"memory"`
}

type batchStatusResponse struct {
	Submissions []remoteSubmission `json:"submissions"`
}

// RunAll submits one remote submission per test case and waits for all of
// them. The returned outcomes are positionally aligned with cases. A remote
// failure fails the whole batch; partial results are never returned.
func (c *Client) RunAll(ctx context.Context, job model.SubmissionJob, cases []model.TestCase) ([]model.ExecutionOutcome, error) {
	langID, ok := languageID(job.Language)
	if !ok {
		return nil, appErr.Newf(appErr.LanguageNotSupported, "no remote language id for %s", job.Language)
	}

	req := batchRequest{Submissions: make([]submissionRequest, 0, len(cases))}
	for _, tc := range cases {
		req.Submissions = append(req.Submissions, submissionRequest{
			SourceCode:     job.SourceCode,
			LanguageID:     langID,
			Stdin:          tc.Input,
			ExpectedOutput: tc.Expected,
			CPUTimeLimit:   float64(job.TimeLimitMs) / 1000.0,
			MemoryLimit:    job.MemoryLimitMB * 1024,
		})
	}

	tokens, err := c.createBatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(tokens) != len(cases) {
		return nil, appErr.Newf(appErr.RemoteJudgeRejected,
			"remote judge returned %d tokens for %d submissions", len(tokens), len(cases))
	}

	return c.waitForBatch(ctx, tokens)
}

func (c *Client) createBatch(ctx context.Context, req batchRequest) ([]string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "encode batch request: %v", err)
	}

	endpoint := c.baseURL + "/submissions/batch?base64_encoded=false"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "build batch request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.RemoteJudgeUnavailable, "submit batch: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.RemoteJudgeUnavailable, "read batch response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, appErr.Newf(appErr.RemoteJudgeRejected,
			"remote judge rejected batch: status %d: %s", resp.StatusCode, truncate(string(data), 512))
	}

	var created []tokenResponse
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, appErr.Wrapf(err, appErr.RemoteJudgeRejected, "decode batch tokens: %v", err)
	}
	tokens := make([]string, 0, len(created))
	for _, t := range created {
		if t.Token == "" {
			return nil, appErr.New(appErr.RemoteJudgeRejected).WithMessage("remote judge returned an empty token")
		}
		tokens = append(tokens, t.Token)
	}
	return tokens, nil
}

func (c *Client) waitForBatch(ctx context.Context, tokens []string) ([]model.ExecutionOutcome, error) {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		submissions, err := c.fetchBatch(ctx, tokens)
		if err != nil {
			return nil, err
		}

		if done, outcomes := collectOutcomes(tokens, submissions); done {
			return outcomes, nil
		}

		if time.Now().After(deadline) {
			return nil, appErr.Newf(appErr.RemoteJudgeTimeout,
				"remote judge did not finish %d submissions within %s", len(tokens), c.pollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchBatch(ctx context.Context, tokens []string) (map[string]remoteSubmission, error) {
	query := url.Values{}
	query.Set("tokens", strings.Join(tokens, ","))
	query.Set("base64_encoded", "false")
	query.Set("fields", "token,status,stdout,stderr,compile_output,message,time,memory")
	endpoint := c.baseURL + "/submissions/batch?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "build status request: %v", err)
	}
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.RemoteJudgeUnavailable, "poll batch: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.RemoteJudgeUnavailable, "read status response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, appErr.Newf(appErr.RemoteJudgeRejected,
			"remote judge status poll failed: status %d: %s", resp.StatusCode, truncate(string(data), 512))
	}

	var status batchStatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, appErr.Wrapf(err, appErr.RemoteJudgeRejected, "decode status response: %v", err)
	}
	byToken := make(map[string]remoteSubmission, len(status.Submissions))
	for _, sub := range status.Submissions {
		byToken[sub.Token] = sub
	}
	return byToken, nil
}

// collectOutcomes converts remote submissions to outcomes in token order.
// It reports done=false while any submission is still queued or running.
func collectOutcomes(tokens []string, submissions map[string]remoteSubmission) (bool, []model.ExecutionOutcome) {
	outcomes := make([]model.ExecutionOutcome, 0, len(tokens))
	for _, token := range tokens {
		sub, ok := submissions[token]
		if !ok || isPending(sub.Status.ID) {
			return false, nil
		}
		outcomes = append(outcomes, toOutcome(sub))
	}
	return true, outcomes
}

func toOutcome(sub remoteSubmission) model.ExecutionOutcome {
	status, message := classify(sub.Status.ID, sub.Status.Description)
	if sub.Message != "" {
		message = sub.Message
	}
	return model.ExecutionOutcome{
		Status:        status,
		Stdout:        sub.Stdout,
		Stderr:        sub.Stderr,
		CompileOutput: sub.CompileOutput,
		Message:       message,
		TimeMs:        parseSeconds(sub.Time),
		MemoryKB:      sub.Memory,
	}
}

// parseSeconds converts Judge0's fractional-second time string to
// milliseconds, tolerating missing or malformed values.
func parseSeconds(s string) int64 {
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(seconds * 1000)
}

func (c *Client) setAuth(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
