package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var artifactsOutput string

var artifactsCmd = &cobra.Command{
	Use:   "artifacts <job-id>",
	Short: "List a job's artifacts or download them as a zip",
	Example: `  pipectl artifacts 4f1c...
  pipectl artifacts 4f1c... -o bundle.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runArtifacts,
}

func init() {
	artifactsCmd.Flags().StringVarP(&artifactsOutput, "output", "o", "", "download the artifact archive to this file")
	rootCmd.AddCommand(artifactsCmd)
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	ctx := cmd.Context()

	if artifactsOutput != "" {
		f, err := os.Create(artifactsOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", artifactsOutput, err)
		}
		defer f.Close()
		if err := api.DownloadArchive(ctx, jobID, f); err != nil {
			os.Remove(artifactsOutput)
			return describeAPIError(err)
		}
		fmt.Printf("wrote %s\n", artifactsOutput)
		return nil
	}

	items, err := api.JobArtifacts(ctx, jobID)
	if err != nil {
		return describeAPIError(err)
	}
	if len(items) == 0 {
		fmt.Println("No artifacts")
		return nil
	}
	fmt.Printf("%-8s %-40s %s\n", "TYPE", "FILENAME", "PATH")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, art := range items {
		fmt.Printf("%-8s %-40s %s\n", art.ArtifactType, art.Filename, art.RelativePath)
	}
	return nil
}
