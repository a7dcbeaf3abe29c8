package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pipeline/internal/client"
	"pipeline/internal/domain"
)

var (
	submitPreset  string
	submitInputs  []string
	submitQuality string
	submitConsent bool
	submitWait    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a generation job",
	Example: `  pipectl submit -p portrait_standard -i prompt="a red fox" -q high
  pipectl submit -p avatar_likeness -i prompt=x -i face_image=ref-1 --consent --wait`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitPreset, "preset", "p", "", "preset id (required)")
	submitCmd.Flags().StringArrayVarP(&submitInputs, "input", "i", nil, "input as key=value, repeatable")
	submitCmd.Flags().StringVarP(&submitQuality, "quality", "q", "", "quality level (default standard)")
	submitCmd.Flags().BoolVar(&submitConsent, "consent", false, "set inputs.consent_given=true")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "wait for the job to finish")
	_ = submitCmd.MarkFlagRequired("preset")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	inputs, err := parseInputs(submitInputs)
	if err != nil {
		return err
	}
	if submitConsent {
		inputs["consent_given"] = true
	}

	ctx := cmd.Context()
	jobID, err := api.SubmitJob(ctx, client.SubmitJobRequest{
		PresetID:     submitPreset,
		Inputs:       inputs,
		QualityLevel: submitQuality,
	})
	if err != nil {
		return describeAPIError(err)
	}
	fmt.Println(jobID)

	if !submitWait {
		return nil
	}
	job, err := api.WaitJob(ctx, jobID, 2*time.Second)
	if err != nil {
		return err
	}
	printJob(job)
	if job.Status != domain.JobStatusCompleted {
		return fmt.Errorf("job %s %s", jobID, job.Status)
	}
	return nil
}

func parseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("input %q is not key=value", pair)
		}
		inputs[key] = parseInputValue(value)
	}
	return inputs, nil
}

// parseInputValue keeps numeric and boolean flags typed so engine parameters
// like seed survive the JSON round trip as numbers.
func parseInputValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
