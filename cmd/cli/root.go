package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prospector-bot/prospector/cmd/cli/list"
	"github.com/prospector-bot/prospector/cmd/cli/scan"
	"github.com/prospector-bot/prospector/cmd/cli/serve"
	"github.com/prospector-bot/prospector/cmd/cli/solve"
	version2 "github.com/prospector-bot/prospector/cmd/cli/version"
	"github.com/prospector-bot/prospector/cmd/util"
	"github.com/prospector-bot/prospector/pkg/system"
)

func NewRootCmd() *cobra.Command {
	RootCmd := &cobra.Command{
		Use:   "prospector",
		Short: "Bid on and solve coding tasks from the agent marketplace",
		Long: `Prospector is an autonomous marketplace agent. It scans the marketplace for
open task instances, places proposals on the ones it can work on, and
delivers a pull request for every proposal it wins.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()

			// secrets usually live in a .env next to the binary
			if err := godotenv.Load(); err == nil {
				log.Ctx(ctx).Debug().Msg("Loaded environment from .env")
			}

			cm := system.NewCleanupManager()
			ctx = context.WithValue(ctx, util.SystemManagerKey, cm)

			cmd.SetContext(ctx)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			ctx.Value(util.SystemManagerKey).(*system.CleanupManager).Cleanup()
		},
	}

	// ====== Run the agent
	RootCmd.AddCommand(serve.NewCmd())

	// ====== Run a single loop, mostly for debugging one side at a time
	RootCmd.AddCommand(scan.NewCmd())
	RootCmd.AddCommand(solve.NewCmd())

	// ====== Inspect the marketplace
	RootCmd.AddCommand(list.NewCmd())

	RootCmd.AddCommand(version2.NewCmd())

	util.AddConfigFlag(RootCmd.PersistentFlags())
	return RootCmd
}

func Execute() {
	rootCmd := NewRootCmd()

	// Ensure commands are able to stop cleanly if someone presses ctrl+c
	ctx, cancel := signal.NotifyContext(context.Background(), util.ShutdownSignals...)
	defer cancel()
	rootCmd.SetContext(ctx)

	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		util.Fatal(rootCmd, err, 1)
	}
}
