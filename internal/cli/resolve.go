package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the engine version for this platform",
	Long: `Selects the newest release in the release index that matches the
configured version and ships an asset for this platform. Nothing is downloaded.`,
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	prov, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}
	ref, err := prov.ResolveEngine(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderRef(ref))
	return nil
}
