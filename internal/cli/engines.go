package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List registered generation engines and their health",
	Args:  cobra.NoArgs,
	RunE:  runEngines,
}

func init() {
	rootCmd.AddCommand(enginesCmd)
}

func runEngines(cmd *cobra.Command, _ []string) error {
	engines, err := api.ListEngines(cmd.Context())
	if err != nil {
		return describeAPIError(err)
	}
	if len(engines) == 0 {
		fmt.Println("No engines registered")
		return nil
	}
	fmt.Printf("%-20s %-12s %s\n", "ENGINE", "TYPE", "HEALTHY")
	fmt.Println("----------------------------------------")
	for _, e := range engines {
		healthy := "yes"
		if !e.Healthy {
			healthy = "no"
		}
		fmt.Printf("%-20s %-12s %s\n", e.EngineID, e.EngineType, healthy)
	}
	return nil
}
