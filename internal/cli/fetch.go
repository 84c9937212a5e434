package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the engine into the cache",
	Long: `Resolves the engine and downloads it into the cache unless a verified copy
is already there, then prints the path of the engine executable.`,
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	prov, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}
	p := newPrinter(cmd.ErrOrStderr())
	p.Step("fetching engine for %s", prov.Platform())

	eng, err := prov.FetchEngine(cmd.Context())
	if err != nil {
		return err
	}
	p.Success("Godot %s ready", eng.Ref.Version)
	fmt.Fprintln(cmd.OutOrStdout(), eng.Binary)
	return nil
}
