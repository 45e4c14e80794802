// Command judge-admin is an operator console for the judging queue:
// inspect depth, list failed jobs, requeue or purge them.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"

	"veloj/internal/common/cache"
	"veloj/internal/judge/queue"
)

const commandTimeout = 10 * time.Second

func main() {
	redisAddr := flag.String("redis", "127.0.0.1:6379", "redis address")
	redisPassword := flag.String("redis-password", "", "redis password")
	queueName := flag.String("queue", "submissions", "queue name")
	flag.Parse()

	client, err := cache.NewRedisClient(cache.RedisConfig{
		Addr:     *redisAddr,
		Password: *redisPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	q, err := queue.NewRedisQueue(client, *queueName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open queue: %v\n", err)
		os.Exit(1)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "judge> ",
		HistoryFile:     historyPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("connected to queue %q at %s; type 'help' for commands\n", *queueName, *redisAddr)
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "read line: %v\n", err)
			return
		}
		if done := dispatch(q, strings.TrimSpace(line)); done {
			return
		}
	}
}

// dispatch runs one console command; returns true on exit.
func dispatch(q queue.JobQueue, line string) bool {
	if line == "" {
		return false
	}
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Printf("parse command: %v\n", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch args[0] {
	case "help":
		printHelp()
	case "stats":
		cmdStats(ctx, q)
	case "failed":
		cmdFailed(ctx, q, args[1:])
	case "requeue":
		if len(args) != 2 {
			fmt.Println("usage: requeue <job-id>")
			return false
		}
		cmdRequeue(ctx, q, args[1])
	case "purge-failed":
		cmdPurgeFailed(ctx, q)
	case "exit", "quit":
		return true
	default:
		fmt.Printf("unknown command %q; type 'help'\n", args[0])
	}
	return false
}

func printHelp() {
	fmt.Println(`commands:
  stats               show queue depth per state
  failed [n]          list up to n failed jobs (default 10)
  requeue <job-id>    move a failed job back to pending
  purge-failed        drop all failed jobs
  exit                leave the console`)
}

func cmdStats(ctx context.Context, q queue.JobQueue) {
	stats, err := q.Stats(ctx)
	if err != nil {
		fmt.Printf("stats: %v\n", err)
		return
	}
	fmt.Printf("pending=%d delayed=%d active=%d failed=%d\n",
		stats.Pending, stats.Delayed, stats.Active, stats.Failed)
}

func cmdFailed(ctx context.Context, q queue.JobQueue, args []string) {
	limit := int64(10)
	if len(args) > 0 {
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || n <= 0 {
			fmt.Println("usage: failed [n]")
			return
		}
		limit = n
	}
	jobs, err := q.FailedJobs(ctx, limit)
	if err != nil {
		fmt.Printf("failed jobs: %v\n", err)
		return
	}
	if len(jobs) == 0 {
		fmt.Println("no failed jobs")
		return
	}
	for _, job := range jobs {
		fmt.Printf("%s attempts=%d/%d error=%q payload=%s\n",
			job.ID, job.Attempts, job.MaxAttempts, job.LastError, compactPayload(job.Payload))
	}
}

func cmdRequeue(ctx context.Context, q queue.JobQueue, jobID string) {
	if err := q.RequeueFailed(ctx, jobID); err != nil {
		fmt.Printf("requeue %s: %v\n", jobID, err)
		return
	}
	fmt.Printf("job %s requeued\n", jobID)
}

func cmdPurgeFailed(ctx context.Context, q queue.JobQueue) {
	n, err := q.PurgeFailed(ctx)
	if err != nil {
		fmt.Printf("purge failed jobs: %v\n", err)
		return
	}
	fmt.Printf("purged %d failed jobs\n", n)
}

func compactPayload(payload json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return string(payload)
	}
	s := buf.String()
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.veloj_admin_history"
}
