package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/raaihank/pii-sentinel/internal/batch"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"github.com/raaihank/pii-sentinel/internal/source"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSONL)")
		outputFile = flag.String("output", "", "Output JSONL file (default stdout)")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (default from config)")
		decision   = flag.String("decision", "", "Answer for warn-first key confirmations: redact or allow")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input prompts.csv --output sanitized.jsonl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input prompts.parquet --workers 8 --decision redact\n", os.Args[0])
		os.Exit(1)
	}

	switch pipeline.Decision(*decision) {
	case pipeline.DecisionNone, pipeline.DecisionRedact, pipeline.DecisionAllow:
	default:
		fmt.Fprintf(os.Stderr, "Invalid decision %q: use redact or allow\n", *decision)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Results may go to stdout.
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
		Stderr: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling batch run...")
		cancel()
	}()

	snap, err := source.FromConfig(cfg)
	if err != nil {
		log.Fatal("Invalid pipeline configuration", zap.Error(err))
	}
	orch := pipeline.New(pipeline.Deps{}, source.Options(cfg), log.Named("pipeline"))
	orch.Reload(snap)

	var out io.Writer = os.Stdout
	if *outputFile != "" {
		file, err := os.Create(*outputFile)
		if err != nil {
			log.Fatal("Failed to create output file", zap.Error(err))
		}
		defer file.Close()
		out = file
	}
	buffered := bufio.NewWriter(out)

	batchConfig := &batch.Config{
		Workers:        cfg.Batch.Workers,
		QueueSize:      cfg.Batch.QueueSize,
		ProgressReport: 1000,
		Decision:       *decision,
	}
	if *workers > 0 {
		batchConfig.Workers = *workers
	}

	processor := batch.NewProcessor(orch, batchConfig, log.Logger)
	result, err := processor.ProcessFile(ctx, *inputFile, buffered)
	if flushErr := buffered.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if err != nil {
		log.Fatal("Batch processing failed", zap.Error(err))
	}

	for _, msg := range result.Errors {
		log.Warn("Record failed", zap.String("error", msg))
	}
	log.Info("Batch run finished",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("held_for_confirmation", result.Held),
		zap.Duration("duration", result.Duration))
}
