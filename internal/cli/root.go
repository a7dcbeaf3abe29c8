// Package cli implements the pipectl command tree.
package cli

import (
	"time"

	"github.com/spf13/cobra"

	"pipeline/internal/client"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	serverURL string
	userID    string
	timeout   time.Duration

	api *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "pipectl",
	Short: "Control a content generation pipeline server",
	Long: `pipectl drives the generation pipeline REST API: submit preset-based
jobs, follow their progress, and collect the artifacts they produce.

The server address comes from --server or the PIPELINE_SERVER_URL
environment variable.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api = client.New(client.Options{BaseURL: serverURL, UserID: userID, Timeout: timeout})
	},
}

// Execute runs the command tree and returns the first error.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL (default PIPELINE_SERVER_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "value sent as X-User-ID")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
}
