package version

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/prospector-bot/prospector/cmd/util"
	"github.com/prospector-bot/prospector/cmd/util/flags"
	"github.com/prospector-bot/prospector/cmd/util/output"
	"github.com/prospector-bot/prospector/pkg/models"
	"github.com/prospector-bot/prospector/pkg/version"
)

type VersionOptions struct {
	CheckForUpdates bool
	OutputOpts      output.OutputOptions
}

func NewVersionOptions() *VersionOptions {
	return &VersionOptions{
		OutputOpts: output.OutputOptions{Format: output.TableFormat},
	}
}

func NewCmd() *cobra.Command {
	oV := NewVersionOptions()

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Get the prospector version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersion(cmd, oV)
		},
	}
	versionCmd.Flags().BoolVar(&oV.CheckForUpdates, "check", oV.CheckForUpdates,
		"Also check whether a newer release has been published.")
	versionCmd.Flags().AddFlagSet(flags.OutputFormatFlags(&oV.OutputOpts))
	return versionCmd
}

var versionColumns = []output.TableColumn[*models.BuildVersionInfo]{
	{
		ColumnConfig: table.ColumnConfig{Name: "Version"},
		Value:        func(v *models.BuildVersionInfo) string { return v.GitVersion },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Commit"},
		Value:        func(v *models.BuildVersionInfo) string { return v.GitCommit },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Built"},
		Value: func(v *models.BuildVersionInfo) string {
			if v.BuildDate.IsZero() {
				return "-"
			}
			return v.BuildDate.Format(time.RFC3339)
		},
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "Platform"},
		Value:        func(v *models.BuildVersionInfo) string { return v.GOOS + "/" + v.GOARCH },
	},
}

func runVersion(cmd *cobra.Command, oV *VersionOptions) error {
	ctx := cmd.Context()

	clientVersion := version.Get()
	if err := output.OutputOne(cmd, versionColumns, oV.OutputOpts, clientVersion); err != nil {
		return err
	}

	if oV.CheckForUpdates {
		updateResponse, err := version.CheckForUpdate(ctx, clientVersion)
		if err != nil {
			util.Fatal(cmd, err, 1)
		}
		if updateResponse.Message != "" {
			cmd.Println()
			cmd.Println(updateResponse.Message)
		}
	}
	return nil
}
