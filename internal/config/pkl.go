package config

import (
	"context"
	"fmt"

	"github.com/apple/pkl-go/pkl"
)

// loadPkl evaluates a Pkl module into cfg. Properties the module leaves out
// keep the values already in cfg.
func loadPkl(ctx context.Context, path string, cfg *Config) error {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(path), cfg); err != nil {
		return fmt.Errorf("failed to evaluate config: %w", err)
	}
	return nil
}
