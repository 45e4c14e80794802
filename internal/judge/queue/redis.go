package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErr "veloj/pkg/errors"
	"veloj/pkg/utils/logger"
)

const (
	keyPrefix = "judge:queue:"

	// priorityStride separates priority bands in the pending zset score so
	// that equal-priority jobs stay FIFO by sequence number.
	priorityStride = 1e12

	defaultMaxAttempts       = 3
	defaultRetryBaseDelay    = 2 * time.Second
	defaultRetryMaxDelay     = time.Minute
	defaultVisibilityTimeout = 5 * time.Minute
	defaultPollInterval      = 250 * time.Millisecond
	promoteBatchSize         = 100
)

type redisKeys struct {
	pending string // zset: score = -priority*stride + seq
	delayed string // zset: score = ready-at unix ms
	active  string // zset: score = visibility deadline unix ms
	failed  string // list: job json, retained for operators
	data    string // hash: id -> job json
	seq     string // counter for FIFO ordering inside a priority band
}

// RedisQueue implements JobQueue on a single redis instance.
type RedisQueue struct {
	client *redis.Client
	name   string
	keys   redisKeys

	mu      sync.Mutex
	handler Handler
	opts    SubscribeOptions
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRedisQueue creates a queue named name on the given client.
func NewRedisQueue(client *redis.Client, name string) (*RedisQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	prefix := keyPrefix + name
	return &RedisQueue{
		client: client,
		name:   name,
		keys: redisKeys{
			pending: prefix + ":pending",
			delayed: prefix + ":delayed",
			active:  prefix + ":active",
			failed:  prefix + ":failed",
			data:    prefix + ":data",
			seq:     prefix + ":seq",
		},
		stopCh: make(chan struct{}),
	}, nil
}

// Enqueue stores a job and makes it claimable by priority order.
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte, priority int) (string, error) {
	if len(payload) == 0 {
		return "", appErr.ValidationError("payload", "required")
	}
	maxAttempts := q.maxAttempts()
	job := Job{
		ID:          uuid.NewString(),
		Payload:     json.RawMessage(payload),
		Priority:    priority,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now().UnixMilli(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InvalidParams, "encode job failed")
	}
	score, err := q.pendingScore(ctx, priority)
	if err != nil {
		return "", err
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.keys.data, job.ID, data)
	pipe.ZAdd(ctx, q.keys.pending, redis.Z{Score: score, Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", appErr.Wrapf(err, appErr.CacheError, "enqueue job failed")
	}
	return job.ID, nil
}

// Subscribe registers the consumer handler. Must be called before Start.
func (q *RedisQueue) Subscribe(handler Handler, opts SubscribeOptions) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return fmt.Errorf("queue already started")
	}
	if q.handler != nil {
		return fmt.Errorf("queue already has a subscriber")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = defaultRetryBaseDelay
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = defaultRetryMaxDelay
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = defaultVisibilityTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	q.handler = handler
	q.opts = opts
	return nil
}

// Start launches the worker pool and the stalled-job janitor.
func (q *RedisQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return fmt.Errorf("queue already started")
	}
	if q.stopped {
		return fmt.Errorf("queue already stopped")
	}
	if q.handler == nil {
		return fmt.Errorf("subscribe before start")
	}
	q.started = true
	for i := 0; i < q.opts.Concurrency; i++ {
		q.wg.Add(1)
		go q.workerLoop()
	}
	q.wg.Add(1)
	go q.janitorLoop()
	return nil
}

// Stop signals the pool to finish the jobs in flight and waits for it,
// bounded by ctx.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.stopCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *RedisQueue) workerLoop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}
		job, ok, err := q.claim(context.Background())
		if err != nil {
			logger.Warn(context.Background(), "claim job failed", zap.String("queue", q.name), zap.Error(err))
		}
		if !ok {
			select {
			case <-q.stopCh:
				return
			case <-time.After(q.opts.PollInterval):
			}
			continue
		}
		q.process(job)
	}
}

func (q *RedisQueue) janitorLoop() {
	defer q.wg.Done()
	interval := q.opts.VisibilityTimeout / 2
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	for {
		select {
		case <-q.stopCh:
			return
		case <-time.After(interval):
			if err := q.reapStalled(context.Background()); err != nil {
				logger.Warn(context.Background(), "reap stalled jobs failed", zap.String("queue", q.name), zap.Error(err))
			}
		}
	}
}

// claim promotes due delayed jobs, then pops the highest-priority pending
// job and stamps its visibility deadline.
func (q *RedisQueue) claim(ctx context.Context) (Job, bool, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return Job{}, false, err
	}
	popped, err := q.client.ZPopMin(ctx, q.keys.pending, 1).Result()
	if err != nil {
		return Job{}, false, appErr.Wrapf(err, appErr.CacheError, "pop pending job failed")
	}
	if len(popped) == 0 {
		return Job{}, false, nil
	}
	jobID, _ := popped[0].Member.(string)
	raw, err := q.client.HGet(ctx, q.keys.data, jobID).Result()
	if err == redis.Nil {
		// Orphaned id without payload; nothing to deliver.
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, appErr.Wrapf(err, appErr.CacheError, "load job payload failed")
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Undecodable payload is unprocessable: retain it for operators.
		_ = q.client.LPush(ctx, q.keys.failed, raw).Err()
		_ = q.client.HDel(ctx, q.keys.data, jobID).Err()
		return Job{}, false, appErr.Wrapf(err, appErr.InvalidParams, "decode job %s failed", jobID)
	}
	deadline := time.Now().Add(q.opts.VisibilityTimeout).UnixMilli()
	if err := q.client.ZAdd(ctx, q.keys.active, redis.Z{Score: float64(deadline), Member: jobID}).Err(); err != nil {
		return Job{}, false, appErr.Wrapf(err, appErr.CacheError, "mark job active failed")
	}
	return job, true, nil
}

func (q *RedisQueue) process(job Job) {
	ctx := context.Background()
	err := q.invoke(ctx, job)
	if err == nil {
		q.complete(ctx, job)
		return
	}
	q.retryOrFail(ctx, job, err)
}

// invoke runs the handler, converting a panic into a failed attempt.
func (q *RedisQueue) invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return q.handler(ctx, job)
}

// complete removes every trace of a successfully processed job.
func (q *RedisQueue) complete(ctx context.Context, job Job) {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.keys.active, job.ID)
	pipe.HDel(ctx, q.keys.data, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn(ctx, "remove completed job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	if q.opts.OnCompleted != nil {
		q.opts.OnCompleted(job)
	}
}

// retryOrFail applies the exponential backoff policy; jobs that exhaust
// their attempts are retained on the failed list for operator inspection.
func (q *RedisQueue) retryOrFail(ctx context.Context, job Job, cause error) {
	job.Attempts++
	job.LastError = cause.Error()
	data, err := json.Marshal(job)
	if err != nil {
		logger.Error(ctx, "encode failed job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if job.Attempts >= job.MaxAttempts {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.keys.active, job.ID)
		pipe.HDel(ctx, q.keys.data, job.ID)
		pipe.LPush(ctx, q.keys.failed, data)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Error(ctx, "move job to failed list", zap.String("job_id", job.ID), zap.Error(err))
		}
		logger.Warn(ctx, "job exhausted retries",
			zap.String("queue", q.name),
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause))
		if q.opts.OnFailed != nil {
			q.opts.OnFailed(job, cause)
		}
		return
	}

	delay := q.backoffDelay(job.Attempts)
	readyAt := time.Now().Add(delay).UnixMilli()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.keys.data, job.ID, data)
	pipe.ZRem(ctx, q.keys.active, job.ID)
	pipe.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(readyAt), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error(ctx, "schedule job retry", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	logger.Info(ctx, "job scheduled for retry",
		zap.String("queue", q.name),
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempts),
		zap.Duration("delay", delay),
		zap.Error(cause))
}

func (q *RedisQueue) backoffDelay(attempts int) time.Duration {
	delay := q.opts.RetryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= q.opts.RetryMaxDelay {
			return q.opts.RetryMaxDelay
		}
	}
	if delay > q.opts.RetryMaxDelay {
		delay = q.opts.RetryMaxDelay
	}
	return delay
}

// promoteDelayed moves due retries back into the pending zset.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	now := time.Now().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.keys.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: promoteBatchSize,
	}).Result()
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "scan delayed jobs failed")
	}
	for _, jobID := range ids {
		removed, err := q.client.ZRem(ctx, q.keys.delayed, jobID).Result()
		if err != nil || removed == 0 {
			continue // another worker promoted it first
		}
		priority := 0
		if raw, err := q.client.HGet(ctx, q.keys.data, jobID).Result(); err == nil {
			var job Job
			if json.Unmarshal([]byte(raw), &job) == nil {
				priority = job.Priority
			}
		}
		score, err := q.pendingScore(ctx, priority)
		if err != nil {
			return err
		}
		if err := q.client.ZAdd(ctx, q.keys.pending, redis.Z{Score: score, Member: jobID}).Err(); err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "promote delayed job failed")
		}
	}
	return nil
}

// reapStalled requeues active jobs whose visibility deadline has passed.
// This is what makes delivery at-least-once: a worker that dies mid-job
// loses its claim after the visibility timeout.
func (q *RedisQueue) reapStalled(ctx context.Context) error {
	now := time.Now().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.keys.active, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: promoteBatchSize,
	}).Result()
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "scan active jobs failed")
	}
	for _, jobID := range ids {
		removed, err := q.client.ZRem(ctx, q.keys.active, jobID).Result()
		if err != nil || removed == 0 {
			continue
		}
		raw, err := q.client.HGet(ctx, q.keys.data, jobID).Result()
		if err == redis.Nil {
			// Orphaned id without payload; nothing to redeliver.
			continue
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "load stalled job payload failed")
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// Undecodable payload is unprocessable: retain it for operators.
			_ = q.client.LPush(ctx, q.keys.failed, raw).Err()
			_ = q.client.HDel(ctx, q.keys.data, jobID).Err()
			continue
		}

		// A lost claim is a failed delivery: count it against MaxAttempts
		// so a job whose worker dies every time cannot cycle forever.
		job.Attempts++
		job.LastError = "visibility timeout expired"
		data, err := json.Marshal(job)
		if err != nil {
			logger.Error(ctx, "encode stalled job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if job.Attempts >= job.MaxAttempts {
			pipe := q.client.TxPipeline()
			pipe.HDel(ctx, q.keys.data, job.ID)
			pipe.LPush(ctx, q.keys.failed, data)
			if _, err := pipe.Exec(ctx); err != nil {
				return appErr.Wrapf(err, appErr.CacheError, "move stalled job to failed list failed")
			}
			logger.Warn(ctx, "stalled job exhausted retries",
				zap.String("queue", q.name),
				zap.String("job_id", job.ID),
				zap.Int("attempts", job.Attempts))
			if q.opts.OnFailed != nil {
				q.opts.OnFailed(job, fmt.Errorf("visibility timeout expired after %d attempts", job.Attempts))
			}
			continue
		}

		score, err := q.pendingScore(ctx, job.Priority)
		if err != nil {
			return err
		}
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.keys.data, job.ID, data)
		pipe.ZAdd(ctx, q.keys.pending, redis.Z{Score: score, Member: job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "requeue stalled job failed")
		}
		logger.Warn(ctx, "stalled job requeued",
			zap.String("queue", q.name),
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts))
		if q.opts.OnStalled != nil {
			q.opts.OnStalled(jobID)
		}
	}
	return nil
}

// Stats returns current queue depth.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.ZCard(ctx, q.keys.pending)
	delayed := pipe.ZCard(ctx, q.keys.delayed)
	active := pipe.ZCard(ctx, q.keys.active)
	failed := pipe.LLen(ctx, q.keys.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, appErr.Wrapf(err, appErr.CacheError, "load queue stats failed")
	}
	return Stats{
		Pending: pending.Val(),
		Delayed: delayed.Val(),
		Active:  active.Val(),
		Failed:  failed.Val(),
	}, nil
}

// FailedJobs returns up to limit retained failed jobs, newest first.
func (q *RedisQueue) FailedJobs(ctx context.Context, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}
	raws, err := q.client.LRange(ctx, q.keys.failed, 0, limit-1).Result()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load failed jobs failed")
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// RequeueFailed moves one failed job back to pending with a fresh attempt
// budget.
func (q *RedisQueue) RequeueFailed(ctx context.Context, jobID string) error {
	if jobID == "" {
		return appErr.ValidationError("job_id", "required")
	}
	raws, err := q.client.LRange(ctx, q.keys.failed, 0, -1).Result()
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "load failed jobs failed")
	}
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		if job.ID != jobID {
			continue
		}
		if err := q.client.LRem(ctx, q.keys.failed, 1, raw).Err(); err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "remove failed job failed")
		}
		job.Attempts = 0
		job.LastError = ""
		data, err := json.Marshal(job)
		if err != nil {
			return appErr.Wrapf(err, appErr.InvalidParams, "encode job failed")
		}
		score, err := q.pendingScore(ctx, job.Priority)
		if err != nil {
			return err
		}
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.keys.data, job.ID, data)
		pipe.ZAdd(ctx, q.keys.pending, redis.Z{Score: score, Member: job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "requeue failed job failed")
		}
		return nil
	}
	return appErr.Newf(appErr.NotFound, "failed job not found: %s", jobID)
}

// PurgeFailed drops every retained failed job and returns how many there were.
func (q *RedisQueue) PurgeFailed(ctx context.Context) (int64, error) {
	count, err := q.client.LLen(ctx, q.keys.failed).Result()
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.CacheError, "count failed jobs failed")
	}
	if err := q.client.Del(ctx, q.keys.failed).Err(); err != nil {
		return 0, appErr.Wrapf(err, appErr.CacheError, "purge failed jobs failed")
	}
	return count, nil
}

// pendingScore encodes priority-then-FIFO ordering: higher priority pops
// first, equal priorities pop in enqueue order.
func (q *RedisQueue) pendingScore(ctx context.Context, priority int) (float64, error) {
	seq, err := q.client.Incr(ctx, q.keys.seq).Result()
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.CacheError, "next sequence failed")
	}
	return float64(-priority)*priorityStride + float64(seq), nil
}

func (q *RedisQueue) maxAttempts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.opts.MaxAttempts > 0 {
		return q.opts.MaxAttempts
	}
	return defaultMaxAttempts
}
