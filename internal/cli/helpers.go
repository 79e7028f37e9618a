package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/provider"
	"github.com/stackform-io/stackform/internal/state"
	"github.com/stackform-io/stackform/providers/aws"
	"github.com/stackform-io/stackform/providers/docker"
	"github.com/stackform-io/stackform/providers/null"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// workspace resolves the optional path argument into a project directory
// and PKL entry point.
func workspace(args []string) (string, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint := "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

// newRegistry builds the handler registry with every provider this binary
// ships.
func newRegistry() (*provider.Registry, error) {
	registry := provider.NewRegistry()
	if err := aws.Register(registry, aws.New(awsRegion)); err != nil {
		return nil, err
	}
	if err := docker.Register(registry, docker.New()); err != nil {
		return nil, err
	}
	if err := null.Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// newEngine builds an engine over the full registry, honoring CLI flags.
func newEngine() (*engine.Engine, error) {
	registry, err := newRegistry()
	if err != nil {
		return nil, err
	}
	eng := engine.New(registry)
	if parallelism > 0 {
		eng.Parallelism = parallelism
	}
	return eng, nil
}

// openStore opens the state store against the configured backend.
func openStore(ctx context.Context, projectDir string) (*state.Store, error) {
	path := statePath
	if path == "" {
		path = filepath.Join(projectDir, ".stackform", "state.json")
	}
	backend, err := state.NewBackend(ctx, state.BackendConfig{
		Type:      backendType,
		Path:      path,
		Bucket:    s3Bucket,
		Key:       s3Key,
		Region:    s3Region,
		LockTable: s3LockTable,
	})
	if err != nil {
		return nil, err
	}
	return state.Open(ctx, backend)
}

func actionSymbol(action ir.Action) (string, string) {
	switch action {
	case ir.ActionCreate:
		return "+", colorGreen
	case ir.ActionDestroy:
		return "-", colorRed
	case ir.ActionUpdate:
		return "~", colorYellow
	case ir.ActionReplace:
		return "-/+", colorYellow
	default:
		return " ", colorReset
	}
}

// renderPlanItems prints the detailed change list for a plan.
func renderPlanItems(plan *ir.Plan) {
	for _, item := range plan.Items {
		if item.Action == ir.ActionNoOp {
			continue
		}
		if item.Action == ir.ActionDestroy && item.Replacing {
			// The paired create item carries the full diff.
			continue
		}

		action := item.Action
		if item.Replacing {
			action = ir.ActionReplace
		}
		symbol, color := actionSymbol(action)

		fmt.Printf("\n%s  # %s will be %s%s\n", color, item.Addr, actionVerb(action), colorReset)
		fmt.Printf("%s  %s resource \"%s\" \"%s\" {%s\n", color, symbol, item.Kind, item.Name, colorReset)

		if len(item.Diff) > 0 {
			renderFieldDiffs(item.Diff)
		} else if item.Action == ir.ActionCreate {
			for k, v := range item.Attributes {
				fmt.Printf("%s      + %s = %s%s\n", colorGreen, k, formatValue(v), colorReset)
			}
		}
		fmt.Printf("%s  }%s\n", color, colorReset)
	}
}

func actionVerb(action ir.Action) string {
	switch action {
	case ir.ActionCreate:
		return "created"
	case ir.ActionUpdate:
		return "updated"
	case ir.ActionReplace:
		return "replaced"
	case ir.ActionDestroy:
		return "destroyed"
	default:
		return string(action)
	}
}

func renderFieldDiffs(diffs []ir.FieldDiff) {
	for _, d := range diffs {
		suffix := ""
		if d.ForcesReplacement {
			suffix = " # forces replacement"
		}
		switch {
		case d.Before == nil:
			fmt.Printf("%s      + %s = %s%s%s\n", colorGreen, d.Field, formatValue(d.After), suffix, colorReset)
		case d.After == nil:
			fmt.Printf("%s      - %s = %s%s%s\n", colorRed, d.Field, formatValue(d.Before), suffix, colorReset)
		default:
			fmt.Printf("%s      ~ %s = %s -> %s%s%s\n", colorYellow, d.Field, formatValue(d.Before), formatValue(d.After), suffix, colorReset)
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case ir.Reference:
		return fmt.Sprintf("(reference to %s)", val.Target)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  Destroy: %d\n", plan.Summary.Destroy)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}

// renderReport prints per-item results after an apply.
func renderReport(report *engine.ApplyReport) {
	for _, item := range report.Items {
		if item.Action == ir.ActionNoOp {
			continue
		}
		switch item.Status {
		case engine.StatusSucceeded:
			fmt.Printf("%s  ✓ %s: %s complete (%s)%s\n", colorGreen, item.Addr, item.Action, item.Duration.Round(time.Millisecond), colorReset)
		case engine.StatusFailed:
			fmt.Printf("%s  ✗ %s: %s failed: %v%s\n", colorRed, item.Addr, item.Action, item.Err, colorReset)
		case engine.StatusNotAttempted:
			fmt.Printf("  · %s: not attempted\n", item.Addr)
		}
	}
}

// renderOutputs prints resolved outputs, redacting sensitive values.
func renderOutputs(outputs map[string]*ir.OutputState) {
	if len(outputs) == 0 {
		return
	}
	fmt.Print(formatOutputs(outputs))
}

// formatOutputs renders the output listing. Sensitive values are replaced
// with a placeholder; the raw value never reaches the text.
func formatOutputs(outputs map[string]*ir.OutputState) string {
	var b strings.Builder
	b.WriteString("\nOutputs:\n")
	for _, name := range sortedOutputNames(outputs) {
		out := outputs[name]
		if out.Sensitive {
			fmt.Fprintf(&b, "  %s = %s\n", name, engine.RedactedPlaceholder)
			continue
		}
		fmt.Fprintf(&b, "  %s = %s\n", name, formatValue(out.Value))
	}
	return b.String()
}

func sortedOutputNames(outputs map[string]*ir.OutputState) []string {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
