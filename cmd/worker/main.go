package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/txn-categorizer/internal/archive"
	"github.com/dvloznov/txn-categorizer/internal/cancel"
	infraBQ "github.com/dvloznov/txn-categorizer/internal/infra/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/jobs"
	"github.com/dvloznov/txn-categorizer/internal/jobs/inmemory"
	"github.com/dvloznov/txn-categorizer/internal/labeling"
	"github.com/dvloznov/txn-categorizer/internal/logger"
	"github.com/dvloznov/txn-categorizer/internal/pipeline"
	"github.com/dvloznov/txn-categorizer/internal/rules"
	"github.com/dvloznov/txn-categorizer/internal/service"
)

func main() {
	log := logger.New()

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	ctx = logger.WithContext(ctx, log)

	wh, err := infraBQ.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create warehouse client")
	}
	defer wh.Close()

	token := cancel.NewToken()
	cache := rules.NewSuggestionCache()
	store := rules.NewStore(wh, log)
	miner := rules.NewMiner(wh, rules.DefaultMinerConfig(), log)
	hook := &service.MiningHook{Miner: miner, Cache: cache, Log: log}

	cfg := pipeline.DefaultConfig()
	cfg.ModelName = labeling.ModelName()
	engine := pipeline.NewEngine(wh, labeling.NewGeminiLabeler(), hook, token, cfg, log)

	var archiver service.Archiver
	if bucket := archive.BucketFromEnv(); bucket != "" {
		archiver = archive.NewGCSArchiver(bucket)
	}

	svc := service.New(wh, engine, store, miner, cache, token, archiver, log)

	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	handler := func(ctx context.Context, job *jobs.PipelineJob) (string, error) {
		// A leftover cancellation request must not kill the next run.
		svc.ResetCancellation()

		log.Info().
			Str("job_id", job.JobID).
			Str("kind", string(job.Kind)).
			Msg("Processing pipeline job")

		switch job.Kind {
		case jobs.JobKindCleanup:
			res, err := svc.RunCleanup(ctx)
			return res.Message, err
		case jobs.JobKindCategorization:
			res, err := svc.RunCategorization(ctx)
			return res.Message, err
		default:
			return "", fmt.Errorf("unexpected job kind: %s", job.Kind)
		}
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// First signal asks the in-flight run to stop between batches; the
	// shutdown below then waits for it to finish cleanly.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")
	log.Info().Msg(svc.RequestCancellation())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
