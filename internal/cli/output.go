package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
)

var outputJSON bool

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Show output values from the last successful run",
	Long: `List recorded outputs, redacting sensitive values. Requesting a single
output by name prints its real value, sensitive or not, so it can be piped
into other tools.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Print outputs as JSON")
}

func runOutput(cmd *cobra.Command, args []string) error {
	wd, _, err := workspace(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}
	outputs := store.Snapshot().Outputs
	if len(outputs) == 0 {
		fmt.Println("No outputs recorded. Run apply first.")
		return nil
	}

	// Single-output lookup prints the raw value.
	if len(args) == 1 {
		out, ok := outputs[args[0]]
		if !ok {
			return fmt.Errorf("output %q not found", args[0])
		}
		if outputJSON {
			data, err := json.Marshal(out.Value)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("%v\n", out.Value)
		return nil
	}

	if outputJSON {
		redacted := make(map[string]any, len(outputs))
		for name, out := range outputs {
			if out.Sensitive {
				redacted[name] = engine.RedactedPlaceholder
			} else {
				redacted[name] = out.Value
			}
		}
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	for _, name := range sortedOutputNames(outputs) {
		out := outputs[name]
		if out.Sensitive {
			fmt.Printf("%s = %s\n", name, engine.RedactedPlaceholder)
			continue
		}
		fmt.Printf("%s = %s\n", name, formatValue(out.Value))
	}
	return nil
}
