// Package eval loads PKL declaration files into the engine's IR.
package eval

import (
	"context"
	"fmt"
	"net/url"

	"github.com/apple/pkl-go/pkl"

	"github.com/stackform-io/stackform/internal/ir"
)

// Evaluator turns PKL modules into resource declarations.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// LoadConfig evaluates the entry point module and returns the declaration
// set with reference markers already parsed.
func (e *Evaluator) LoadConfig(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Config, error) {
	u, err := url.Parse("file://" + e.projectDir + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := pkl.NewProjectEvaluator(ctx, u, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var cfg ir.Config
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(entryPoint), &cfg); err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}

	for _, res := range cfg.Resources {
		if res.Kind == "" || res.Name == "" {
			return nil, fmt.Errorf("resource declarations need both kind and name (got kind=%q name=%q)", res.Kind, res.Name)
		}
		if res.Attributes == nil {
			res.Attributes = map[string]any{}
		}
		res.Attributes = ir.ParseAttributes(res.Attributes).(map[string]any)
	}
	for _, out := range cfg.Outputs {
		out.Value = ir.ParseAttributes(out.Value)
	}

	return &cfg, nil
}
