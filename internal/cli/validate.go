package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/eval"
)

var validateProperties map[string]string

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check declarations without planning",
	Long:  `Evaluate the declarations, build the dependency graph and verify that every handler kind is known. No state is read and no resource is touched.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringToStringVarP(&validateProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := workspace(args)
	if err != nil {
		return err
	}

	cfg, err := eval.NewEvaluator(wd).LoadConfig(cmd.Context(), entryPoint, validateProperties)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, err := engine.BuildGraph(cfg.Resources); err != nil {
		return err
	}

	registry, err := newRegistry()
	if err != nil {
		return err
	}
	for _, res := range cfg.Resources {
		if _, err := registry.Get(res.Kind); err != nil {
			return fmt.Errorf("resource %s: %w", res.Addr(), err)
		}
	}

	fmt.Printf("Configuration valid: %d resources, %d outputs.\n", len(cfg.Resources), len(cfg.Outputs))
	return nil
}
