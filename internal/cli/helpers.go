package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/godle-io/godle/internal/addon"
	"github.com/godle-io/godle/internal/config"
	"github.com/godle-io/godle/internal/provision"
	"github.com/godle-io/godle/internal/release"
	"github.com/godle-io/godle/internal/state"
	"github.com/godle-io/godle/internal/version"
)

// ExitError carries the engine's exit code out of the exec command so main
// can exit with it unchanged.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("engine exited with code %d", e.Code)
}

// loadConfig reads --config, or the default config file in the working
// directory.
func loadConfig(ctx context.Context) (*config.Config, error) {
	path := configPath
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path, err = config.Find(wd)
		if err != nil {
			return nil, err
		}
	}
	return config.Load(ctx, path)
}

// loadProvisioner loads the config and builds a provisioner reporting add-on
// progress to the command output.
func loadProvisioner(cmd *cobra.Command) (*provision.Provisioner, error) {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	p := newPrinter(cmd.OutOrStdout())
	return provision.New(cfg, provision.WithEvents(func(e addon.Event) {
		switch e.Status {
		case "installed":
			p.Success("%s@%s installed (%s)", e.Name, e.Version, e.Duration.Round(time.Millisecond))
		case "failed":
			p.Failure("%s@%s failed: %v", e.Name, e.Version, e.Error)
		}
	}))
}

func newTable(buf *bytes.Buffer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(buf)
	t.AppendHeader(header)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

// renderRef renders a resolved release.
func renderRef(ref release.Ref) string {
	var buf bytes.Buffer
	t := newTable(&buf, table.Row{"Version", "Platform", "URL", "Checksum"})
	checksum := ref.Checksum
	if checksum == "" {
		checksum = "-"
	}
	t.AppendRow(table.Row{ref.Version.String(), ref.Platform.String(), ref.URL, checksum})
	t.Render()
	return buf.String()
}

// renderPlan renders an install plan in install order, marking each node
// against the manifest.
func renderPlan(plan *addon.Plan, manifest *state.Manifest) string {
	var buf bytes.Buffer
	t := newTable(&buf, table.Row{"#", "Addon", "Version", "Required By", "Action"})
	for i, n := range plan.Nodes {
		t.AppendRow(table.Row{i + 1, n.Name, n.Version, requiredBy(n.RequiredBy), planAction(n, manifest)})
	}
	t.Render()
	return buf.String()
}

func planAction(n *addon.Node, manifest *state.Manifest) string {
	if manifest == nil {
		return "install"
	}
	rec, ok := manifest.Get(n.Name)
	switch {
	case !ok:
		return "install"
	case version.SameVersion(rec.Version, n.Version):
		return "keep"
	default:
		return "upgrade from " + rec.Version
	}
}

func requiredBy(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		if n == "" {
			n = "(project)"
		}
		out[i] = n
	}
	return strings.Join(out, ", ")
}

// renderManifest renders the installed add-ons.
func renderManifest(m *state.Manifest) string {
	var buf bytes.Buffer
	t := newTable(&buf, table.Row{"Addon", "Version", "Path", "Content Hash"})
	for _, name := range m.Names() {
		rec, _ := m.Get(name)
		t.AppendRow(table.Row{name, rec.Version, rec.InstallPath, shortHash(rec.ContentHash)})
	}
	t.Render()
	return buf.String()
}

func shortHash(h string) string {
	if i := strings.IndexByte(h, ':'); i >= 0 && len(h) > i+13 {
		return h[:i+13]
	}
	return h
}
