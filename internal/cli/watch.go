package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pipeline/internal/domain"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Poll a job until it reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "n", 2*time.Second, "poll interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobID := args[0]
	var last *domain.Job
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		job, err := api.GetJob(ctx, jobID)
		if err != nil {
			return describeAPIError(err)
		}
		if last == nil || job.Status != last.Status || job.Progress != last.Progress {
			fmt.Printf("%s  %-10s %3d%%\n", time.Now().Format("15:04:05"), job.Status, job.Progress)
		}
		last = job
		if job.Status.Terminal() {
			fmt.Println()
			printJob(job)
			if job.Status != domain.JobStatusCompleted {
				return fmt.Errorf("job %s %s", job.ID, job.Status)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
