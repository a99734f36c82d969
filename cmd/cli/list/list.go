package list

import (
	"github.com/spf13/cobra"
)

func NewCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Inspect marketplace instances and proposals",
	}
	listCmd.AddCommand(newInstancesCmd())
	listCmd.AddCommand(newProposalsCmd())
	return listCmd
}
