package cli

import (
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the godle configuration",
	Long:  `Loads the configuration, applies defaults and reports the first problem found.`,
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout())
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		p.Failure("configuration is invalid")
		return err
	}

	p.Success("configuration is valid")
	p.Info("  engine:  %s", cfg.Spec())
	p.Info("  addons:  %d declared", len(cfg.Addons))
	p.Info("  project: %s", cfg.ProjectPath())
	p.Info("  cache:   %s", cfg.CachePath())
	return nil
}
