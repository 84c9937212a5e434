package cli

import (
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the build directory",
	Long: `Removes the build directory. When the build directory is ignored it is
recreated empty with its .gdignore marker.`,
	RunE: runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	prov, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}
	if err := prov.Clean(); err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout()).Success("cleaned %s", prov.Config().BuildPath())
	return nil
}
