package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/eval"
)

var (
	planProperties map[string]string
	planOut        string
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Show the changes a run would make",
	Long:  `Compute the plan reconciling declarations against recorded state, without touching any resource.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Set external properties (format: key=value)")
	planCmd.Flags().StringVar(&planOut, "out", "", "Write the plan as JSON to the given file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := workspace(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	eng, err := newEngine()
	if err != nil {
		return err
	}

	fmt.Print("Loading configuration... ")
	cfg, err := eval.NewEvaluator(wd).LoadConfig(ctx, entryPoint, planProperties)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}

	fmt.Print("Calculating plan... ")
	plan, err := eng.Plan(ctx, cfg, store.Snapshot())
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	if !plan.Changes() {
		fmt.Println("No changes. Resources are up-to-date.")
		return nil
	}

	fmt.Println("\nStackform will perform the following actions:")
	renderPlanItems(plan)
	renderPlanSummary(plan)

	if planOut != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding plan: %w", err)
		}
		if err := os.WriteFile(planOut, data, 0o644); err != nil {
			return fmt.Errorf("writing plan file: %w", err)
		}
		fmt.Printf("\nPlan written to %s\n", planOut)
	}
	return nil
}
