package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/godle-io/godle/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "godle",
	Short: "Godot engine and add-on provisioning",
	Long: `Godle provisions the Godot engine and its add-ons for a project.

It resolves a declared engine version to a release for this platform,
downloads and caches it, runs it, and installs declared add-ons from a
catalog in dependency order:
  • Content-addressed download cache shared between projects
  • Add-on dependency resolution with cycle and conflict detection
  • Installed add-on manifest, locally or in S3
  • Ignore files for the directories godle owns`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.InitWithFormat(logLevel, logFormat, cmd.ErrOrStderr())
		if noColor {
			color.NoColor = true
		}
		return nil
	},
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// interrupt by the caller.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: godle.yml, godle.yaml or godle.pkl in the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(addonsCmd)
	rootCmd.AddCommand(ignoreCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)
}
