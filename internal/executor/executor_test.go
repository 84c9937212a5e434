package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain lets the test binary stand in for the engine: when re-run with
// GO_WANT_HELPER_PROCESS=1 it echoes its arguments and exits with HELPER_EXIT
// before the testing flags are parsed.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		fakeEngine()
		return
	}
	os.Exit(m.Run())
}

func fakeEngine() {
	fmt.Fprintf(os.Stdout, "args=%s\n", strings.Join(os.Args[1:], "|"))
	if wd, err := os.Getwd(); err == nil {
		fmt.Fprintf(os.Stderr, "wd=%s\n", wd)
	}
	if s := os.Getenv("HELPER_SLEEP"); s != "" {
		d, _ := time.ParseDuration(s)
		time.Sleep(d)
	}
	code, _ := strconv.Atoi(os.Getenv("HELPER_EXIT"))
	os.Exit(code)
}

func helperOptions(stdout, stderr *bytes.Buffer, env ...string) Options {
	return Options{
		Stdout: stdout,
		Stderr: stderr,
		Env:    append([]string{"GO_WANT_HELPER_PROCESS=1"}, env...),
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		flag  string
		extra []string
		want  []string
	}{
		{"debug default flag", Debug, "", []string{"--headless"}, []string{"--debug", "--headless"}},
		{"debug custom flag", Debug, "-d", []string{"--headless", "--quit"}, []string{"-d", "--headless", "--quit"}},
		{"release omits flag", Release, "", []string{"--headless"}, []string{"--headless"}},
		{"no extra args", Debug, "", nil, []string{"--debug"}},
		{"release no args", Release, "", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Args(tt.mode, tt.flag, tt.extra))
		})
	}
}

func TestRun_DebugPrependsFlagAndReturnsExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	opts := helperOptions(&stdout, &stderr, "HELPER_EXIT=3")

	status, err := Run(context.Background(), os.Args[0], Debug, []string{"--headless"}, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Code)
	assert.False(t, status.Success())
	assert.Equal(t, "args=--debug|--headless\n", stdout.String())
}

func TestRun_ReleaseSuccess(t *testing.T) {
	var stdout, stderr bytes.Buffer
	opts := helperOptions(&stdout, &stderr)

	status, err := Run(context.Background(), os.Args[0], Release, []string{"--export-release", "Linux"}, opts)
	require.NoError(t, err)
	assert.True(t, status.Success())
	assert.Equal(t, "args=--export-release|Linux\n", stdout.String())
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	opts := helperOptions(&stdout, &stderr)
	opts.Dir = dir

	_, err := Run(context.Background(), os.Args[0], Release, nil, opts)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got := strings.TrimSpace(strings.TrimPrefix(stderr.String(), "wd="))
	got, err = filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRun_MissingBinaryIsLaunchError(t *testing.T) {
	_, err := Run(context.Background(), filepath.Join(t.TempDir(), "godot"), Debug, nil, Options{})
	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRun_NotExecutableIsLaunchError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "godot")
	require.NoError(t, os.WriteFile(p, []byte("not a binary"), 0644))

	_, err := Run(context.Background(), p, Debug, nil, Options{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr), "got %v", err)
}

func TestRun_CancelKillsChild(t *testing.T) {
	var stdout, stderr bytes.Buffer
	opts := helperOptions(&stdout, &stderr, "HELPER_SLEEP=30s")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, os.Args[0], Release, nil, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}
