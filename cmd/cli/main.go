package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/txn-categorizer/internal/archive"
	"github.com/dvloznov/txn-categorizer/internal/cancel"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	infraBQ "github.com/dvloznov/txn-categorizer/internal/infra/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/labeling"
	"github.com/dvloznov/txn-categorizer/internal/logger"
	"github.com/dvloznov/txn-categorizer/internal/pipeline"
	"github.com/dvloznov/txn-categorizer/internal/rules"
	"github.com/dvloznov/txn-categorizer/internal/service"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "cleanup":
		runCleanup(log)
	case "categorize":
		runCategorize(log)
	case "create-rule":
		runCreateRule(log)
	case "rule-status":
		runRuleStatus(log)
	case "suggest":
		runSuggest(log)
	case "runs":
		runRuns(log)
	case "summary":
		runSummary(log)
	case "reset":
		runReset(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Transaction Categorizer CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  cleanup      Standardize cleaned text fields and correct transaction types")
	fmt.Println("  categorize   Run the two-stage categorization pipeline")
	fmt.Println("  create-rule  Create a categorization rule")
	fmt.Println("  rule-status  Activate or deactivate a rule")
	fmt.Println("  suggest      Mine rule suggestions, optionally approving them in bulk")
	fmt.Println("  runs         List recent labeling runs")
	fmt.Println("  summary      Summarize categorized transactions by category")
	fmt.Println("  reset        Null all pipeline-written fields (destructive)")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// buildService assembles the full pipeline behind the service surface. The
// cancellation token and suggestion cache live for the process; in the CLI
// that means one invocation.
func buildService(ctx context.Context, log zerolog.Logger, cfg pipeline.Config) (*service.Service, *infraBQ.Client, error) {
	wh, err := infraBQ.NewClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	token := cancel.NewToken()
	cache := rules.NewSuggestionCache()
	store := rules.NewStore(wh, log)
	miner := rules.NewMiner(wh, rules.DefaultMinerConfig(), log)
	hook := &service.MiningHook{Miner: miner, Cache: cache, Log: log}

	if cfg.ModelName == "" {
		cfg.ModelName = labeling.ModelName()
	}
	engine := pipeline.NewEngine(wh, labeling.NewGeminiLabeler(), hook, token, cfg, log)

	var archiver service.Archiver
	if bucket := archive.BucketFromEnv(); bucket != "" {
		archiver = archive.NewGCSArchiver(bucket)
	}

	return service.New(wh, engine, store, miner, cache, token, archiver, log), wh, nil
}

func runCleanup(log zerolog.Logger) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancelFn()
	ctx = logger.WithContext(ctx, log)

	svc, wh, err := buildService(ctx, log, pipeline.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service")
	}
	defer wh.Close()

	res, err := svc.RunCleanup(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Cleanup failed")
	}

	fmt.Println(res.Message)
}

func runCategorize(log zerolog.Logger) {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	batchSize := fs.Int("batch-size", 0, "Transactions per model batch (default 100)")
	maxBatches := fs.Int("max-batches", 0, "Stage-2 batches per run (default 1)")
	fs.Parse(os.Args[2:])

	ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancelFn()
	ctx = logger.WithContext(ctx, log)

	cfg := pipeline.DefaultConfig()
	if *batchSize > 0 {
		cfg.BatchSize = *batchSize
	}
	if *maxBatches > 0 {
		cfg.MaxBatches = *maxBatches
	}

	svc, wh, err := buildService(ctx, log, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service")
	}
	defer wh.Close()

	res, err := svc.RunCategorization(ctx)
	if err != nil {
		log.Error().Err(err).
			Int64("rule_based", res.Run.RuleBasedCount).
			Int("batches_run", res.Run.BatchesRun).
			Msg("Categorization failed; committed counts stand")
		os.Exit(1)
	}

	fmt.Println(res.Message)
}

func runCreateRule(log zerolog.Logger) {
	fs := flag.NewFlagSet("create-rule", flag.ExitOnError)
	identifier := fs.String("identifier", "", "Merchant name or description to match")
	identifierType := fs.String("identifier-type", string(domain.IdentifierMerchantName),
		"merchant_name_cleaned or description_cleaned")
	txnType := fs.String("transaction-type", string(domain.TransactionTypeDebit), "Debit or Credit")
	primary := fs.String("primary", "", "Primary category")
	secondary := fs.String("secondary", "", "Secondary category")
	persona := fs.String("persona", "", "Persona type (default general)")
	confidence := fs.Float64("confidence", -1, "Confidence score in [0,1] (default 0.99)")
	fs.Parse(os.Args[2:])

	if *identifier == "" || *primary == "" || *secondary == "" {
		log.Fatal().Msg("Error: -identifier, -primary and -secondary are required")
	}

	ctx := logger.WithContext(context.Background(), log)

	svc, wh, err := buildService(ctx, log, pipeline.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service")
	}
	defer wh.Close()

	in := rules.CreateRuleInput{
		Identifier:        *identifier,
		IdentifierType:    domain.IdentifierType(*identifierType),
		TransactionType:   domain.TransactionType(*txnType),
		PrimaryCategory:   *primary,
		SecondaryCategory: *secondary,
		PersonaType:       *persona,
	}
	if *confidence >= 0 {
		in.ConfidenceScore = confidence
	}

	res, err := svc.CreateRule(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("Rule creation failed")
	}

	fmt.Println(res.Message)
}

func runRuleStatus(log zerolog.Logger) {
	fs := flag.NewFlagSet("rule-status", flag.ExitOnError)
	ruleID := fs.String("rule-id", "", "Rule ID to update")
	status := fs.String("status", "", "New status: active or inactive")
	fs.Parse(os.Args[2:])

	if *ruleID == "" || *status == "" {
		log.Fatal().Msg("Error: -rule-id and -status are required")
	}

	ctx := logger.WithContext(context.Background(), log)

	svc, wh, err := buildService(ctx, log, pipeline.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service")
	}
	defer wh.Close()

	res, err := svc.UpdateRuleStatus(ctx, *ruleID, domain.RuleStatus(*status))
	if err != nil {
		log.Fatal().Err(err).Msg("Rule status update failed")
	}

	fmt.Println(res.Message)
}

func runSuggest(log zerolog.Logger) {
	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	approve := fs.Bool("approve", false, "Approve the mined suggestions in bulk")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	svc, wh, err := buildService(ctx, log, pipeline.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service")
	}
	defer wh.Close()

	res, err := svc.SuggestNewRules(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Suggestion mining failed")
	}

	fmt.Println(res.Message)
	for i, sg := range res.Suggestions {
		fmt.Printf("%d. [%s] %q (%s) -> %s / %s (%d transactions)\n",
			i+1, sg.IdentifierType, sg.Identifier, sg.TransactionType,
			sg.PrimaryCategory, sg.SecondaryCategory, sg.Support)
	}

	// The suggestion cache only lives for the process, so the CLI approves in
	// the same invocation or not at all.
	if *approve && len(res.Suggestions) > 0 {
		bulk, err := svc.BulkCreateRules(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Bulk approval failed")
		}
		fmt.Println(bulk.Message)
	}
}

func runRuns(log zerolog.Logger) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Maximum runs to list (default 20)")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	svc, wh, err := buildService(ctx, log, pipeline.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service")
	}
	defer wh.Close()

	res, err := svc.ListLabelingRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Listing labeling runs failed")
	}

	fmt.Println(res.Message)
	for _, run := range res.Runs {
		fmt.Printf("  %s  %-8s %s  model=%s batch=%d validated=%d updated=%d\n",
			run.StartedTS, run.Status, run.LabelingRunID,
			run.ModelName, run.BatchSize, run.ValidatedCount, run.UpdatedCount)
	}
}

func runSummary(log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	dateRange := fs.String("range", "", "Relative timeframe, e.g. 'last 6 months' (default last 90 days)")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	svc, wh, err := buildService(ctx, log, pipeline.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service")
	}
	defer wh.Close()

	start, end := service.ParseDateRange(*dateRange, time.Now())
	res, err := svc.SummarizeByCategory(ctx, start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("Summary failed")
	}

	fmt.Println(res.Message)
	for _, line := range res.Lines {
		fmt.Printf("  %-20s %-25s %6d txns  %12s\n",
			line.PrimaryCategory, line.SecondaryCategory, line.TransactionCount, line.TotalAmount)
	}
}

func runReset(log zerolog.Logger) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	confirmation := fs.String("confirm", "", "Pass CONFIRM to proceed")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	svc, wh, err := buildService(ctx, log, pipeline.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service")
	}
	defer wh.Close()

	res, err := svc.ResetAllTransactions(ctx, *confirmation)
	if err != nil {
		log.Fatal().Err(err).Msg("Reset failed")
	}

	fmt.Println(res.Message)
}
