package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// printer writes human-oriented command output.
type printer struct {
	out io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{out: w}
}

func (p *printer) Success(format string, a ...any) {
	green.Fprintf(p.out, "✓ %s\n", fmt.Sprintf(format, a...))
}

func (p *printer) Warning(format string, a ...any) {
	yellow.Fprintf(p.out, "⚠ %s\n", fmt.Sprintf(format, a...))
}

func (p *printer) Failure(format string, a ...any) {
	red.Fprintf(p.out, "✗ %s\n", fmt.Sprintf(format, a...))
}

func (p *printer) Step(format string, a ...any) {
	cyan.Fprintf(p.out, "→ %s\n", fmt.Sprintf(format, a...))
}

func (p *printer) Info(format string, a ...any) {
	fmt.Fprintf(p.out, format+"\n", a...)
}
