// Package platform identifies the host OS/architecture pair used to select
// engine binary assets.
package platform

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
)

type OS string

const (
	Linux   OS = "linux"
	Windows OS = "windows"
	MacOS   OS = "macos"
)

type Arch string

const (
	X86_64 Arch = "x86_64"
	X86_32 Arch = "x86_32"
	ARM64  Arch = "arm64"
	ARM32  Arch = "arm32"
)

// ID is an immutable OS/architecture pair, rendered as "os/arch".
type ID struct {
	OS   OS
	Arch Arch
}

func (p ID) String() string {
	return string(p.OS) + "/" + string(p.Arch)
}

var (
	hostOnce sync.Once
	host     ID
	hostErr  error
)

// Detect returns the platform of the running process. It is computed once.
func Detect() (ID, error) {
	hostOnce.Do(func() {
		host, hostErr = FromGo(runtime.GOOS, runtime.GOARCH)
	})
	return host, hostErr
}

// FromGo maps Go's GOOS/GOARCH names to a platform ID.
func FromGo(goos, goarch string) (ID, error) {
	var id ID
	switch goos {
	case "linux":
		id.OS = Linux
	case "windows":
		id.OS = Windows
	case "darwin":
		id.OS = MacOS
	default:
		return ID{}, fmt.Errorf("unsupported operating system: %s", goos)
	}

	switch goarch {
	case "amd64":
		id.Arch = X86_64
	case "386":
		id.Arch = X86_32
	case "arm64":
		id.Arch = ARM64
	case "arm":
		id.Arch = ARM32
	default:
		return ID{}, fmt.Errorf("unsupported architecture: %s", goarch)
	}
	return id, nil
}

// Parse reads an "os/arch" string. Go-style names (darwin, amd64) are accepted
// alongside the canonical ones.
func Parse(s string) (ID, error) {
	osName, archName, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "/")
	if !ok || osName == "" || archName == "" {
		return ID{}, fmt.Errorf("invalid platform %q: expected os/arch", s)
	}

	var id ID
	switch osName {
	case "linux", "windows", "macos":
		id.OS = OS(osName)
	case "darwin", "osx":
		id.OS = MacOS
	default:
		return ID{}, fmt.Errorf("invalid platform %q: unknown os %q", s, osName)
	}

	switch archName {
	case "x86_64", "amd64", "x64":
		id.Arch = X86_64
	case "x86_32", "386", "x86":
		id.Arch = X86_32
	case "arm64", "aarch64":
		id.Arch = ARM64
	case "arm32", "arm":
		id.Arch = ARM32
	default:
		return ID{}, fmt.Errorf("invalid platform %q: unknown arch %q", s, archName)
	}
	return id, nil
}

// ExecutableSuffix is the file suffix binaries carry on this platform.
func (p ID) ExecutableSuffix() string {
	if p.OS == Windows {
		return ".exe"
	}
	return ""
}
