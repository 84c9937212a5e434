package cli

import (
	"github.com/spf13/cobra"
)

var ignoreCmd = &cobra.Command{
	Use:   "ignore",
	Short: "Create ignore files for directories godle owns",
	Long: `Creates the project ignore file listing the build and add-ons directories,
unless it already exists, and marks the build directory with .gdignore so
the Godot importer skips it. An existing ignore file is never modified.`,
	RunE: runIgnore,
}

func runIgnore(cmd *cobra.Command, args []string) error {
	prov, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}
	p := newPrinter(cmd.OutOrStdout())
	created, err := prov.ApplyIgnores()
	if err != nil {
		return err
	}
	path := prov.Config().IgnoreFilePath()
	switch {
	case created:
		p.Success("created %s", path)
	case len(prov.OwnedPaths()) == 0:
		p.Info("Ignore file management is disabled.")
	default:
		p.Info("%s exists, left unchanged", path)
	}
	return nil
}
