package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pipeline/internal/events"
)

var eventsFollow bool

var eventsCmd = &cobra.Command{
	Use:   "events <job-id>",
	Short: "Show a job's event log",
	Long: `Show the stored event log for a job.

With --follow the command streams events over a websocket instead: it replays
the stored history, then prints new events as they happen until the job
reaches a terminal state or the connection is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "stream events until the job finishes")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	if eventsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err := api.StreamEvents(ctx, jobID, func(ev events.Event) error {
			printEvent(ev)
			return nil
		})
		if err != nil {
			return describeAPIError(err)
		}
		return nil
	}

	items, err := api.JobEvents(cmd.Context(), jobID)
	if err != nil {
		return describeAPIError(err)
	}
	for _, ev := range items {
		printEvent(ev)
	}
	return nil
}

func printEvent(ev events.Event) {
	fmt.Printf("%s %-5s %-18s %s\n", ev.Timestamp.Local().Format("15:04:05"), ev.Level, ev.Event, ev.Message)
}
