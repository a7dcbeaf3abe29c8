package cli

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := api.GetJob(cmd.Context(), args[0])
		if err != nil {
			return describeAPIError(err)
		}
		printJob(job)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
