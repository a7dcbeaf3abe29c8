package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipeline/internal/client"
)

var (
	jobsStatus string
	jobsPreset string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs, newest first",
	RunE:  runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (queued|running|completed|failed|cancelled)")
	jobsCmd.Flags().StringVar(&jobsPreset, "preset", "", "filter by preset id")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 0, "maximum number of jobs")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	jobs, err := api.ListJobs(cmd.Context(), client.ListJobsOptions{
		Status:   jobsStatus,
		PresetID: jobsPreset,
		Limit:    jobsLimit,
	})
	if err != nil {
		return describeAPIError(err)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s %-10s %-24s %-9s %s\n", "ID", "STATUS", "PRESET", "PROGRESS", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------------------")
	for _, job := range jobs {
		created := job.CreatedAt.Local().Format("15:04:05")
		fmt.Printf("%-36s %-10s %-24s %8d%% %s\n", job.ID, job.Status, job.PresetID, job.Progress, created)
	}
	return nil
}
