package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Request cancellation of a job",
	Long: `Request cancellation of a queued or running job.

Cancellation is cooperative: an engine call already in flight is not
interrupted, but its result is discarded and the job stays cancelled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := api.CancelJob(cmd.Context(), args[0])
		if err != nil {
			return describeAPIError(err)
		}
		fmt.Printf("%s %s\n", job.ID, job.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
