package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [path]",
	Short: "Reconcile state with the real resources",
	Long:  `Re-read every tracked resource from its provider and update recorded attributes. Resources that no longer exist are dropped from state.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
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
	if err := store.Lock(ctx, "refresh"); err != nil {
		return err
	}
	defer store.Unlock(ctx)

	count := len(store.Snapshot().Resources)
	fmt.Printf("Refreshing %d resources...\n", count)

	if err := eng.Refresh(ctx, store); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	fmt.Println("Refresh complete.")
	return nil
}
