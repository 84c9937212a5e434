package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/godle-io/godle/internal/addon"
	"github.com/godle-io/godle/internal/logging"
	"github.com/godle-io/godle/internal/state"
)

// ErrNoCatalog is returned when add-ons are declared but no catalog is
// configured.
var ErrNoCatalog = errors.New("no add-on catalog configured")

// PlanAddons resolves the declared add-ons into an install plan.
func (p *Provisioner) PlanAddons(ctx context.Context) (*addon.Plan, error) {
	if len(p.cfg.Addons) == 0 {
		return &addon.Plan{}, nil
	}
	if p.catalog == nil {
		return nil, ErrNoCatalog
	}
	plan, err := addon.NewResolver(p.catalog, p.cfg.Workers).Plan(ctx, p.cfg.Addons)
	if err != nil {
		return nil, err
	}
	logging.Info("planned addons", "count", plan.Len())
	return plan, nil
}

// InstallAddons plans and installs the declared add-ons while holding the
// manifest lock. The manifest is written even when the install fails so that
// add-ons which did install are not fetched again.
func (p *Provisioner) InstallAddons(ctx context.Context) (*addon.Result, error) {
	plan, err := p.PlanAddons(ctx)
	if err != nil {
		return nil, err
	}
	return p.Install(ctx, plan)
}

// Install applies an existing plan.
func (p *Provisioner) Install(ctx context.Context, plan *addon.Plan) (*addon.Result, error) {
	backend, err := p.manifestBackend(ctx)
	if err != nil {
		return nil, err
	}

	installer := addon.NewInstaller(p.cache, p.cfg.AddonsPath(),
		addon.WithWorkers(p.cfg.Workers),
		addon.WithUpgradePolicy(p.cfg.Policy()),
		addon.WithCallback(p.events),
		addon.WithProjectDir(p.cfg.ProjectPath()),
	)

	var res *addon.Result
	err = state.WithLock(ctx, backend, func() error {
		manifest, err := backend.Read(ctx)
		if err != nil {
			return err
		}

		var applyErr error
		res, applyErr = installer.Apply(ctx, plan, manifest)

		if err := backend.Write(ctx, manifest); err != nil {
			if applyErr != nil {
				return errors.Join(applyErr, fmt.Errorf("failed to save manifest: %w", err))
			}
			return fmt.Errorf("failed to save manifest: %w", err)
		}
		return applyErr
	})
	if res != nil && len(res.Orphaned) > 0 {
		logging.Debug("installed addons are no longer declared", "addons", res.Orphaned)
	}
	return res, err
}

// InstalledAddons returns the current manifest.
func (p *Provisioner) InstalledAddons(ctx context.Context) (*state.Manifest, error) {
	backend, err := p.manifestBackend(ctx)
	if err != nil {
		return nil, err
	}
	return backend.Read(ctx)
}
