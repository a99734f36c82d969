package scan

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prospector-bot/prospector/cmd/util"
)

const stopTimeout = 10 * time.Second

func NewCmd() *cobra.Command {
	var once bool

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run only the market scanner",
		Long: `Poll the marketplace for open instances and place proposals on the ones
worth bidding on. Useful for operating the bidding side on its own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return scan(cmd, once)
		},
	}
	scanCmd.Flags().BoolVar(&once, "once", false, "Run a single scan pass and exit.")
	return scanCmd
}

func scan(cmd *cobra.Command, once bool) error {
	ctx := cmd.Context()

	cfg, err := util.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateScanner(); err != nil {
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

	if once {
		return marketScanner.ScanOnce(ctx)
	}

	marketScanner.Start(ctx)
	log.Ctx(ctx).Info().Str("Market", cfg.Market.URL).Msg("market scanner started")
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	marketScanner.Stop(stopCtx)
	return nil
}
