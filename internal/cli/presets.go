package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"pipeline/internal/domain"
)

var (
	presetsCategory string
	presetsEngine   string
)

var presetsCmd = &cobra.Command{
	Use:   "presets [preset-id]",
	Short: "List workflow presets or inspect one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPresets,
}

func init() {
	presetsCmd.Flags().StringVar(&presetsCategory, "category", "", "filter by category")
	presetsCmd.Flags().StringVar(&presetsEngine, "engine", "", "filter by required engine")
	rootCmd.AddCommand(presetsCmd)
}

func runPresets(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(args) == 1 {
		p, err := api.GetPreset(ctx, args[0])
		if err != nil {
			return describeAPIError(err)
		}
		printPreset(p)
		return nil
	}

	presets, err := api.ListPresets(ctx, presetsCategory, presetsEngine)
	if err != nil {
		return describeAPIError(err)
	}
	if len(presets) == 0 {
		fmt.Println("No presets found")
		return nil
	}
	fmt.Printf("%-24s %-20s %-8s %s\n", "ID", "CATEGORY", "CONSENT", "QUALITY LEVELS")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, p := range presets {
		consent := ""
		if p.RequiresConsent {
			consent = "required"
		}
		fmt.Printf("%-24s %-20s %-8s %s\n", p.ID, p.Category, consent, strings.Join(sortedKeys(p.QualityLevels), ", "))
	}
	return nil
}

func printPreset(p *domain.WorkflowPreset) {
	fmt.Printf("Preset: %s\n", p.ID)
	fmt.Printf("  Name: %s\n", p.Name)
	fmt.Printf("  Category: %s\n", p.Category)
	if p.Description != "" {
		fmt.Printf("  Description: %s\n", p.Description)
	}
	if len(p.EngineRequirements) > 0 {
		fmt.Printf("  Engines: %s\n", strings.Join(p.EngineRequirements, ", "))
	}
	fmt.Printf("  Consent required: %v\n", p.RequiresConsent)
	fmt.Println("  Required inputs:")
	for _, name := range sortedKeys(p.RequiredInputs) {
		fmt.Printf("    %s (%s)\n", name, p.RequiredInputs[name])
	}
	if len(p.OptionalInputs) > 0 {
		fmt.Println("  Optional inputs:")
		for _, name := range sortedKeys(p.OptionalInputs) {
			fmt.Printf("    %s (%s)\n", name, p.OptionalInputs[name])
		}
	}
	fmt.Printf("  Quality levels: %s\n", strings.Join(sortedKeys(p.QualityLevels), ", "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
