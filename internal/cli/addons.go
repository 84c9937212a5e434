package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addonsNoIgnore bool

var addonsCmd = &cobra.Command{
	Use:   "addons",
	Short: "Resolve and install declared add-ons",
}

var addonsPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the install plan",
	Long: `Resolves the declared add-ons and their dependencies against the catalog
and prints them in install order, dependencies first.`,
	RunE: runAddonsPlan,
}

var addonsInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install declared add-ons",
	Long: `Resolves the declared add-ons, installs every one that is missing or out of
date into the add-ons directory, and records them in the manifest.`,
	RunE: runAddonsInstall,
}

var addonsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed add-ons",
	RunE:  runAddonsList,
}

func init() {
	addonsInstallCmd.Flags().BoolVar(&addonsNoIgnore, "no-ignore", false, "Do not create ignore files after installing")

	addonsCmd.AddCommand(addonsPlanCmd)
	addonsCmd.AddCommand(addonsInstallCmd)
	addonsCmd.AddCommand(addonsListCmd)
}

func runAddonsPlan(cmd *cobra.Command, args []string) error {
	prov, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}
	plan, err := prov.PlanAddons(cmd.Context())
	if err != nil {
		return err
	}
	p := newPrinter(cmd.OutOrStdout())
	if plan.Len() == 0 {
		p.Info("No add-ons declared.")
		return nil
	}
	manifest, err := prov.InstalledAddons(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderPlan(plan, manifest))
	return nil
}

func runAddonsInstall(cmd *cobra.Command, args []string) error {
	prov, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}
	p := newPrinter(cmd.OutOrStdout())

	res, err := prov.InstallAddons(cmd.Context())
	if err != nil {
		return err
	}
	for _, name := range res.Orphaned {
		p.Warning("%s is installed but no longer declared", name)
	}
	p.Success("%d installed, %d up to date", len(res.Installed), len(res.Skipped))

	if !addonsNoIgnore {
		if _, err := prov.ApplyIgnores(); err != nil {
			return err
		}
	}
	return nil
}

func runAddonsList(cmd *cobra.Command, args []string) error {
	prov, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}
	manifest, err := prov.InstalledAddons(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if manifest.Len() == 0 {
		newPrinter(cmd.OutOrStdout()).Info("No add-ons installed.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Manifest serial: %d, lineage: %s\n\n", manifest.Serial(), manifest.Lineage())
	fmt.Fprint(cmd.OutOrStdout(), renderManifest(manifest))
	return nil
}
