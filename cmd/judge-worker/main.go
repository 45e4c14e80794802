package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"veloj/internal/common/cache"
	"veloj/internal/common/db"
	"veloj/internal/common/http/middleware"
	"veloj/internal/common/storage"
	"veloj/internal/judge/batchjudge"
	"veloj/internal/judge/controller"
	"veloj/internal/judge/events"
	"veloj/internal/judge/executor"
	"veloj/internal/judge/loader"
	"veloj/internal/judge/model"
	"veloj/internal/judge/queue"
	"veloj/internal/judge/repository"
	"veloj/internal/judge/service"
	"veloj/pkg/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/judge_worker.yaml", "path to config file")
	flag.Parse()

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Errorf(ctx, "connect redis: %v", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	database, err := db.NewMySQL(cfg.Database)
	if err != nil {
		logger.Errorf(ctx, "connect mysql: %v", err)
		os.Exit(1)
	}
	defer database.Close()

	var caseLoader loader.TestCaseLoader
	switch cfg.Cases.Source {
	case casesDatapack:
		store, err := storage.NewMinioStore(cfg.Minio)
		if err != nil {
			logger.Errorf(ctx, "connect object storage: %v", err)
			os.Exit(1)
		}
		caseLoader, err = loader.NewDatapackLoader(store, cfg.Cases.Datapack)
		if err != nil {
			logger.Errorf(ctx, "init datapack loader: %v", err)
			os.Exit(1)
		}
	default:
		caseLoader = loader.NewMySQLLoader(database)
	}

	var runner service.TestCaseRunner
	switch cfg.Runner.Mode {
	case runnerBatch:
		runner, err = batchjudge.NewClient(cfg.Runner.Batch)
	default:
		runner, err = executor.NewExecutor(cfg.Executor)
	}
	if err != nil {
		logger.Errorf(ctx, "init %s runner: %v", cfg.Runner.Mode, err)
		os.Exit(1)
	}

	submissions := repository.NewSubmissionRepository(database)
	liveStatus := repository.NewStatusRepository(redisClient)
	hub := events.NewHub()

	judgeService, err := service.NewJudgeService(caseLoader, runner, submissions, liveStatus, hub)
	if err != nil {
		logger.Errorf(ctx, "init judge service: %v", err)
		os.Exit(1)
	}

	jobQueue, err := queue.NewRedisQueue(redisClient, cfg.Queue.Name)
	if err != nil {
		logger.Errorf(ctx, "init queue: %v", err)
		os.Exit(1)
	}
	err = jobQueue.Subscribe(judgeService.HandleJob, queue.SubscribeOptions{
		Concurrency:       cfg.Queue.Concurrency,
		MaxAttempts:       cfg.Queue.MaxAttempts,
		RetryBaseDelay:    cfg.Queue.RetryBaseDelay.Std(),
		RetryMaxDelay:     cfg.Queue.RetryMaxDelay.Std(),
		VisibilityTimeout: cfg.Queue.VisibilityTimeout.Std(),
		PollInterval:      cfg.Queue.PollInterval.Std(),
		OnFailed: func(job queue.Job, jobErr error) {
			finalizeExhaustedJob(submissions, job, jobErr)
		},
	})
	if err != nil {
		logger.Errorf(ctx, "subscribe queue: %v", err)
		os.Exit(1)
	}
	if err := jobQueue.Start(); err != nil {
		logger.Errorf(ctx, "start queue: %v", err)
		os.Exit(1)
	}
	logger.Infof(ctx, "judge worker consuming queue %q in %s mode", cfg.Queue.Name, cfg.Runner.Mode)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.TraceContext(), controller.RequestLogger())
	judgeController := controller.NewJudgeController(liveStatus, submissions, hub, cfg.Server.JWTSecret)
	judgeController.RegisterRoutes(router)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf(ctx, "http server: %v", err)
		}
	}()
	logger.Infof(ctx, "status endpoint listening on %s", cfg.Server.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf(ctx, "http shutdown: %v", err)
	}
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		logger.Warnf(ctx, "queue stop: %v", err)
	}
	logger.Infof(ctx, "shutdown complete")
}

// submissionFinalizer is the slice of the result sink the exhausted-job
// hook needs.
type submissionFinalizer interface {
	CompleteSubmission(ctx context.Context, id string, result *model.JudgingResult) (bool, error)
}

// finalizeExhaustedJob writes a terminal verdict for a job whose delivery
// attempts ran out, so the submission does not sit in JUDGING forever. The
// job itself stays on the failed list for operators. The cause goes to the
// log only; users see a generic message without infrastructure detail.
func finalizeExhaustedJob(sink submissionFinalizer, job queue.Job, jobErr error) {
	ctx := context.Background()
	sj, err := model.DecodeSubmissionJob(job.Payload)
	if err != nil {
		logger.Errorf(ctx, "exhausted job %s has undecodable payload: %v", job.ID, err)
		return
	}
	logger.Errorf(ctx, "job %s for submission %s exhausted retries: %v", job.ID, sj.SubmissionID, jobErr)
	won, err := sink.CompleteSubmission(ctx, sj.SubmissionID, &model.JudgingResult{
		Verdict:      model.VerdictRuntimeError,
		ErrorMessage: fmt.Sprintf("judging failed after %d attempts", job.Attempts),
	})
	if err != nil {
		logger.Errorf(ctx, "finalize exhausted job %s: %v", job.ID, err)
		return
	}
	if won {
		logger.Warnf(ctx, "submission %s finalized after exhausting retries", sj.SubmissionID)
	}
}
