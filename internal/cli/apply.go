package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/eval"
	"github.com/stackform-io/stackform/internal/ir"
)

var (
	applyAutoApprove bool
	applyProperties  map[string]string
)

var applyCmd = &cobra.Command{
	Use:   "apply [path]",
	Short: "Create, update or destroy resources to match the declarations",
	Long:  `Compute the plan and execute it, committing state after every resource operation.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().StringToStringVarP(&applyProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runApply(cmd *cobra.Command, args []string) error {
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
	cfg, err := eval.NewEvaluator(wd).LoadConfig(ctx, entryPoint, applyProperties)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}
	if err := store.Lock(ctx, "apply"); err != nil {
		return err
	}
	defer store.Unlock(ctx)

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

	if !applyAutoApprove {
		fmt.Print("\nDo you want to perform these actions? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	changes := plan.Summary.Create + plan.Summary.Update + plan.Summary.Replace + plan.Summary.Destroy
	fmt.Printf("\nApplying %d changes...\n", changes)

	eng.Events = func(ev engine.ApplyEvent) {
		if ev.Started && ev.Action != ir.ActionNoOp {
			fmt.Printf("  %s: %s...\n", ev.Addr, actionVerbProgress(ev.Action))
		}
	}

	report, err := eng.Apply(ctx, plan, store)
	renderReport(report)
	if err != nil {
		// Every successful item is already committed; a fresh plan picks
		// up from exactly here.
		return fmt.Errorf("apply failed: %w", err)
	}

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create+plan.Summary.Replace, plan.Summary.Update, plan.Summary.Destroy+plan.Summary.Replace)
	renderOutputs(report.Outputs)
	return nil
}

func actionVerbProgress(action ir.Action) string {
	switch action {
	case ir.ActionCreate:
		return "creating"
	case ir.ActionUpdate:
		return "updating"
	case ir.ActionDestroy:
		return "destroying"
	default:
		return string(action)
	}
}
