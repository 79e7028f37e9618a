package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/eval"
)

var graphProperties map[string]string

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Print the dependency graph in DOT format",
	Long:  `Build the dependency graph from the declarations and emit Graphviz DOT, suitable for piping into dot -Tsvg.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().StringToStringVarP(&graphProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runGraph(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := workspace(args)
	if err != nil {
		return err
	}

	cfg, err := eval.NewEvaluator(wd).LoadConfig(cmd.Context(), entryPoint, graphProperties)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	graph, err := engine.BuildGraph(cfg.Resources)
	if err != nil {
		return err
	}
	fmt.Print(graph.DOT())
	return nil
}
