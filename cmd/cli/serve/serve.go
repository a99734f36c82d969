package serve

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prospector-bot/prospector/cmd/util"
	"github.com/prospector-bot/prospector/pkg/version"
)

// stopTimeout bounds how long shutdown waits for an in-flight solve pass.
const stopTimeout = 30 * time.Second

var serveExample = `  # Run the agent with config from the environment
  PROSPECTOR_MARKET_APIKEY=... prospector serve

  # Run the agent with a config file and records that survive restarts
  prospector serve --config prospector.yaml
`

func NewCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the prospector agent",
		Long:    `Start the market scanner and the instance solver and run until interrupted.`,
		Example: serveExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd)
		},
	}
	return serveCmd
}

func serve(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := util.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateScanner(); err != nil {
		return err
	}
	if err := cfg.ValidateSolver(); err != nil {
		return err
	}

	market, err := util.GetMarketClient(cfg)
	if err != nil {
		return err
	}
	recordStore, err := util.GetStore(ctx, cfg)
	if err != nil {
		return err
	}

	marketScanner, err := util.GetScanner(cfg, market, recordStore)
	if err != nil {
		return err
	}
	instanceSolver, err := util.GetSolver(ctx, cfg, market, recordStore)
	if err != nil {
		return err
	}

	if !cfg.Update.SkipChecks {
		version.RunUpdateChecker(ctx, cfg.Update.CheckFrequency.AsTimeDuration(), version.LogUpdateResponse)
	}

	marketScanner.Start(ctx)
	instanceSolver.Start(ctx)
	log.Ctx(ctx).Info().
		Str("Market", cfg.Market.URL).
		Str("Agent", cfg.Agent.Type.String()).
		Msg("prospector agent started")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	marketScanner.Stop(stopCtx)
	instanceSolver.Stop(stopCtx)
	log.Info().Msg("prospector agent stopped")
	return nil
}
