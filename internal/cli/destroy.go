package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/ir"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Destroy every resource recorded in state",
	Long:  `Plan against an empty declaration set, destroying all tracked resources in reverse dependency order.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	wd, _, err := workspace(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	eng, err := newEngine()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}
	if err := store.Lock(ctx, "destroy"); err != nil {
		return err
	}
	defer store.Unlock(ctx)

	// Destroy is a plan against nothing declared.
	plan, err := eng.Plan(ctx, &ir.Config{}, store.Snapshot())
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	if !plan.Changes() {
		fmt.Println("No resources to destroy.")
		return nil
	}

	fmt.Println("Stackform will destroy the following resources:")
	renderPlanItems(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove {
		fmt.Print("\nDo you really want to destroy all resources? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	report, err := eng.Apply(ctx, plan, store)
	renderReport(report)
	if err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}

	fmt.Printf("\nDestroy complete! Resources: %d destroyed.\n", plan.Summary.Destroy)
	return nil
}
