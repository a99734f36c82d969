package solve

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prospector-bot/prospector/cmd/util"
)

// stopTimeout is generous because a solve pass can have an assistant run in
// flight.
const stopTimeout = 30 * time.Second

func NewCmd() *cobra.Command {
	var once bool

	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "Run only the instance solver",
		Long: `Poll the marketplace for awarded proposals and deliver a pull request for
each one. Useful for working through won instances without placing new bids.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return solve(cmd, once)
		},
	}
	solveCmd.Flags().BoolVar(&once, "once", false, "Run a single solve pass and exit.")
	return solveCmd
}

func solve(cmd *cobra.Command, once bool) error {
	ctx := cmd.Context()

	cfg, err := util.LoadConfig()
	if err != nil {
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
	instanceSolver, err := util.GetSolver(ctx, cfg, market, recordStore)
	if err != nil {
		return err
	}

	if once {
		return instanceSolver.SolveOnce(ctx)
	}

	instanceSolver.Start(ctx)
	log.Ctx(ctx).Info().Str("Market", cfg.Market.URL).Msg("instance solver started")
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	instanceSolver.Stop(stopCtx)
	return nil
}
