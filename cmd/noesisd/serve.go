package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noesis-labs/noesis/internal/analysis"
	"github.com/noesis-labs/noesis/internal/anthropic"
	"github.com/noesis-labs/noesis/internal/config"
	"github.com/noesis-labs/noesis/internal/logging"
	"github.com/noesis-labs/noesis/internal/prompt"
	"github.com/noesis-labs/noesis/internal/server"
	"github.com/noesis-labs/noesis/internal/usage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Noesis API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel)

	if !cfg.Anthropic.Configured() {
		logger.Warn("no Anthropic API key configured, chat and analysis will be unavailable")
	}

	ledger, err := usage.NewLedger(ctx, cfg.Usage)
	if err != nil {
		return fmt.Errorf("open usage ledger: %w", err)
	}
	defer ledger.Close()

	reporter, err := usage.NewReporter(ledger, cfg.Pricing, logger)
	if err != nil {
		return err
	}

	if purger, ok := ledger.(usage.Purger); ok {
		sweeper, err := usage.NewSweeper(purger, cfg.Usage.RetentionSchedule, cfg.Usage.RetentionDays, logger)
		if err != nil {
			return err
		}
		if sweeper != nil {
			sweeper.Start()
			defer sweeper.Stop()
		}
	}

	client := anthropic.NewClient(cfg.Anthropic)

	analyzer, err := analysis.NewAnalyzer(client, logger)
	if err != nil {
		return fmt.Errorf("build analyzer: %w", err)
	}

	prompts, err := prompt.NewBuilder(cfg.Prompt.IncludeRawData)
	if err != nil {
		return fmt.Errorf("build prompt builder: %w", err)
	}

	srv := server.New(cfg, logger, analyzer, client, prompts, reporter)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
