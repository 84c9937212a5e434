package cli

import (
	"github.com/spf13/cobra"

	"github.com/godle-io/godle/internal/executor"
)

var (
	execRelease bool
	execDir     string
)

var execCmd = &cobra.Command{
	Use:   "exec [-- engine args...]",
	Short: "Run the engine",
	Long: `Fetches the engine if needed and runs it. In debug mode (the default) the
configured debug flag comes first, followed by extra_args from the
configuration and then the arguments given here. The engine's exit code
becomes godle's exit code.`,
	Example: `  godle exec -- --headless --path .
  godle exec --release -- --export-release Linux build/game.x86_64`,
	RunE: runExec,
}

func init() {
	execCmd.Flags().BoolVar(&execRelease, "release", false, "Run without the debug flag")
	execCmd.Flags().StringVar(&execDir, "dir", "", "Working directory for the engine (default: current)")
}

func runExec(cmd *cobra.Command, args []string) error {
	prov, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}

	mode := executor.Debug
	if execRelease {
		mode = executor.Release
	}
	status, err := prov.RunEngine(cmd.Context(), mode, args, executor.Options{
		Dir:    execDir,
		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	if !status.Success() {
		return &ExitError{Code: status.Code}
	}
	return nil
}
