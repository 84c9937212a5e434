// Package executor runs the engine binary as a child process.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/godle-io/godle/internal/logging"
)

// DefaultDebugFlag is passed to the engine in Debug mode.
const DefaultDebugFlag = "--debug"

// Mode selects the engine run mode.
type Mode int

const (
	Debug Mode = iota
	Release
)

func (m Mode) String() string {
	if m == Release {
		return "release"
	}
	return "debug"
}

// ExitStatus is the outcome of a process that ran to completion.
type ExitStatus struct {
	Code     int
	Duration time.Duration
}

// Success reports whether the process exited with code zero.
func (s ExitStatus) Success() bool {
	return s.Code == 0
}

// LaunchError means the binary could not be started at all.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Options tunes how the child process is started. The zero value inherits
// the working directory, environment and standard streams of this process.
type Options struct {
	DebugFlag string
	Dir       string
	Env       []string // appended to os.Environ()
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	// WaitDelay bounds how long to wait for the child after ctx is done.
	WaitDelay time.Duration
}

// Args builds the engine argument vector: the debug flag in Debug mode,
// followed by extraArgs unchanged.
func Args(mode Mode, debugFlag string, extraArgs []string) []string {
	if debugFlag == "" {
		debugFlag = DefaultDebugFlag
	}
	args := make([]string, 0, len(extraArgs)+1)
	if mode == Debug {
		args = append(args, debugFlag)
	}
	return append(args, extraArgs...)
}

// Run starts binaryPath with the mode flag and extraArgs, streams its output,
// and waits for it. A non-zero exit is returned in ExitStatus, not as an
// error. Cancelling ctx kills the child.
func Run(ctx context.Context, binaryPath string, mode Mode, extraArgs []string, opts Options) (ExitStatus, error) {
	if _, err := os.Stat(binaryPath); err != nil {
		return ExitStatus{}, &LaunchError{Path: binaryPath, Err: err}
	}

	args := Args(mode, opts.DebugFlag, extraArgs)
	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	cmd.Stdin = opts.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = opts.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.WaitDelay = opts.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	logging.Debug("starting engine", "path", binaryPath, "mode", mode.String(), "args", args)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ExitStatus{}, &LaunchError{Path: binaryPath, Err: err}
	}

	err := cmd.Wait()
	status := ExitStatus{Duration: time.Since(start)}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return status, fmt.Errorf("failed waiting for %s: %w", binaryPath, err)
		}
		status.Code = exitErr.ExitCode()
		if ctx.Err() != nil {
			return status, fmt.Errorf("engine run cancelled: %w", ctx.Err())
		}
	}

	logging.Debug("engine exited", "code", status.Code, "duration", status.Duration)
	return status, nil
}
