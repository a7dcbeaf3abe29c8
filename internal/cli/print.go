package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pipeline/internal/client"
	"pipeline/internal/domain"
)

func printJob(job *domain.Job) {
	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Preset: %s (%s)\n", job.PresetID, job.QualityLevel)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Progress: %d%%\n", job.Progress)
	if job.UserID != "" {
		fmt.Printf("  User: %s\n", job.UserID)
	}
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.FinishedAt != nil {
		fmt.Printf("  Finished: %s\n", job.FinishedAt.Format(time.RFC3339))
		if job.StartedAt != nil {
			fmt.Printf("  Duration: %s\n", job.FinishedAt.Sub(*job.StartedAt).Round(time.Millisecond))
		}
	}
	if job.OutputURL != "" {
		fmt.Printf("  Output: %s\n", job.OutputURL)
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s (%s)\n", job.Error, job.ErrorCode)
	}
	for _, step := range job.Remediation {
		fmt.Printf("  Remediation: %s\n", step)
	}
}

// describeAPIError appends the server's remediation steps to the error text.
func describeAPIError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && len(apiErr.Remediation) > 0 {
		return fmt.Errorf("%s\nremediation:\n  - %s", apiErr.Error(), strings.Join(apiErr.Remediation, "\n  - "))
	}
	return err
}
