package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/txn-categorizer/internal/api/handlers"
	"github.com/dvloznov/txn-categorizer/internal/api/middleware"
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
	defaultPort := os.Getenv("TXN_API_PORT")
	if defaultPort == "" {
		defaultPort = "8080"
	}

	var (
		port       = flag.String("port", defaultPort, "HTTP server port (or set TXN_API_PORT)")
		batchSize  = flag.Int("batch-size", 0, "Transactions per model batch (default 100)")
		maxBatches = flag.Int("max-batches", 0, "Stage-2 batches per categorization run (default 1)")
	)
	flag.Parse()

	log := logger.New()

	ctx := context.Background()

	wh, err := infraBQ.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create warehouse client")
	}
	defer wh.Close()

	// The token and cache are process-wide: a cancellation request over the
	// API reaches the run the worker goroutine is executing.
	token := cancel.NewToken()
	cache := rules.NewSuggestionCache()
	store := rules.NewStore(wh, log)
	miner := rules.NewMiner(wh, rules.DefaultMinerConfig(), log)
	hook := &service.MiningHook{Miner: miner, Cache: cache, Log: log}

	cfg := pipeline.DefaultConfig()
	if *batchSize > 0 {
		cfg.BatchSize = *batchSize
	}
	if *maxBatches > 0 {
		cfg.MaxBatches = *maxBatches
	}
	cfg.ModelName = labeling.ModelName()
	engine := pipeline.NewEngine(wh, labeling.NewGeminiLabeler(), hook, token, cfg, log)

	var archiver service.Archiver
	if bucket := archive.BucketFromEnv(); bucket != "" {
		archiver = archive.NewGCSArchiver(bucket)
	} else {
		log.Warn().Msg("No archive bucket configured - unparsable model responses will not be archived")
	}

	svc := service.New(wh, engine, store, miner, cache, token, archiver, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job *jobs.PipelineJob) (string, error) {
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

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	pipelineHandler := handlers.NewPipelineHandler(jobQueue, log)
	rulesHandler := handlers.NewRulesHandler(svc, log)
	adminHandler := handlers.NewAdminHandler(svc, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/cleanup", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			pipelineHandler.EnqueueCleanup(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categorization", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			pipelineHandler.EnqueueCategorization(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			rulesHandler.CreateRule(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/rules/", func(w http.ResponseWriter, r *http.Request) {
		// Only PATCH /api/rules/{id}/status is routed here
		if r.Method != http.MethodPatch {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/rules/")
		ruleID, ok := strings.CutSuffix(rest, "/status")
		if !ok || ruleID == "" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		rulesHandler.UpdateRuleStatus(w, r, ruleID)
	})

	mux.HandleFunc("/api/suggestions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rulesHandler.SuggestRules(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/suggestions/approve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			rulesHandler.ApproveSuggestions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/cancellation", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			adminHandler.RequestCancellation(w, r)
		case http.MethodDelete:
			adminHandler.ResetCancellation(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/labeling-runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			adminHandler.ListLabelingRuns(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			adminHandler.Summarize(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/admin/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			adminHandler.Reset(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(mux),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Ask the in-flight run to stop between batches before waiting on it.
	token.Request()
	cancelWorker()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
