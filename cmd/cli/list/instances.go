package list

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/prospector-bot/prospector/cmd/util"
	"github.com/prospector-bot/prospector/cmd/util/flags"
	"github.com/prospector-bot/prospector/cmd/util/output"
	"github.com/prospector-bot/prospector/pkg/models"
)

var instanceColumns = []output.TableColumn[models.Instance]{
	{
		ColumnConfig: table.ColumnConfig{Name: "ID"},
		Value:        func(i models.Instance) string { return i.ID },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Status"},
		Value:        func(i models.Instance) string { return i.Status.String() },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Price"},
		Value: func(i models.Instance) string {
			if !i.Priced() {
				return "-"
			}
			return fmt.Sprintf("%.3f", i.MaxPrice)
		},
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Created"},
		Value:        func(i models.Instance) string { return i.CreationDate.Format(time.RFC3339) },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Background", WidthMax: 60, WidthMaxEnforcer: text.WrapText},
		Value:        func(i models.Instance) string { return i.Background },
	},
}

func newInstancesCmd() *cobra.Command {
	var status string
	outputOpts := output.OutputOptions{Format: output.TableFormat}

	instancesCmd := &cobra.Command{
		Use:   "instances",
		Short: "List marketplace instances in a given status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listInstances(cmd, status, outputOpts)
		},
	}
	instancesCmd.Flags().StringVar(&status, "status", "open",
		`Instance status to list ("open" or "resolved").`)
	instancesCmd.Flags().AddFlagSet(flags.OutputFormatFlags(&outputOpts))
	return instancesCmd
}

func listInstances(cmd *cobra.Command, status string, outputOpts output.OutputOptions) error {
	ctx := cmd.Context()

	cfg, err := util.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateMarket(); err != nil {
		return err
	}

	var code models.InstanceStatus
	switch status {
	case "open":
		code = models.InstanceStatus(cfg.Market.OpenInstanceCode)
	case "resolved":
		code = models.InstanceStatus(cfg.Market.ResolvedInstanceCode)
	default:
		return fmt.Errorf("unknown instance status %q", status)
	}

	market, err := util.GetMarketClient(cfg)
	if err != nil {
		return err
	}
	instances, err := market.ListInstances(ctx, code)
	if err != nil {
		return err
	}
	return output.Output(cmd, instanceColumns, outputOpts, instances)
}
