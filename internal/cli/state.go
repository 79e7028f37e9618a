package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect recorded state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked resource addresses",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <addr>",
	Short: "Show the recorded entry for one resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <addr>",
	Short: "Forget a resource without destroying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	wd, _, err := workspace(nil)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), wd)
	if err != nil {
		return err
	}
	snap := store.Snapshot()
	if len(snap.Resources) == 0 {
		fmt.Println("State is empty.")
		return nil
	}
	for _, res := range snap.Resources {
		fmt.Println(res.Addr())
	}
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	wd, _, err := workspace(nil)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), wd)
	if err != nil {
		return err
	}
	res := store.Snapshot().Resource(args[0])
	if res == nil {
		return fmt.Errorf("no resource %q in state", args[0])
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	wd, _, err := workspace(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}
	if err := store.Lock(ctx, "state rm"); err != nil {
		return err
	}
	defer store.Unlock(ctx)

	if store.Snapshot().Resource(args[0]) == nil {
		return fmt.Errorf("no resource %q in state", args[0])
	}
	if err := store.Remove(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s from state. The real resource still exists.\n", args[0])
	return nil
}
