package list

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/prospector-bot/prospector/cmd/util"
	"github.com/prospector-bot/prospector/cmd/util/flags"
	"github.com/prospector-bot/prospector/cmd/util/output"
	"github.com/prospector-bot/prospector/pkg/models"
)

var proposalColumns = []output.TableColumn[models.Proposal]{
	{
		ColumnConfig: table.ColumnConfig{Name: "ID"},
		Value:        func(p models.Proposal) string { return p.ID },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Instance"},
		Value:        func(p models.Proposal) string { return p.InstanceID },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Bid"},
		Value:        func(p models.Proposal) string { return fmt.Sprintf("%.3f", p.MaxBid) },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Status"},
		Value:        func(p models.Proposal) string { return p.Status.String() },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Created"},
		Value:        func(p models.Proposal) string { return p.CreationDate.Format(time.RFC3339) },
	},
}

func newProposalsCmd() *cobra.Command {
	outputOpts := output.OutputOptions{Format: output.TableFormat}

	proposalsCmd := &cobra.Command{
		Use:   "proposals",
		Short: "List this agent's proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listProposals(cmd, outputOpts)
		},
	}
	proposalsCmd.Flags().AddFlagSet(flags.OutputFormatFlags(&outputOpts))
	return proposalsCmd
}

func listProposals(cmd *cobra.Command, outputOpts output.OutputOptions) error {
	ctx := cmd.Context()

	cfg, err := util.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateMarket(); err != nil {
		return err
	}

	market, err := util.GetMarketClient(cfg)
	if err != nil {
		return err
	}
	proposals, err := market.ListProposals(ctx)
	if err != nil {
		return err
	}
	return output.Output(cmd, proposalColumns, outputOpts, proposals)
}
