package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const configTemplate = `# godle configuration
version: "4"

# Release index listing engine downloads per platform (path or URL).
release_index: releases.yml

# Add-on catalog (path or URL). Required when addons are declared.
# catalog: https://example.com/godot-addons.yml

addons: []
#  - name: gut
#    version: "^9"

ignore:
  build_dir: true
  addons_gitignore: true
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a godle.yml in the working directory",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout())
	path := "godle.yml"
	if configPath != "" {
		path = configPath
	}

	if _, err := os.Stat(path); err == nil {
		p.Warning("%s already exists, leaving it unchanged", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	p.Success("created %s", path)
	p.Info("\nNext steps:")
	p.Info("  1. Point release_index at your engine release index")
	p.Info("  2. Run 'godle fetch' to download the engine")
	p.Info("  3. Run 'godle addons install' to install declared add-ons")
	return nil
}
