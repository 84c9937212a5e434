package addon

import (
	"fmt"
	"strings"
)

// CyclicDependencyError reports a dependency cycle. Cycle starts and ends
// with the same name, e.g. [a b a].
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}

// Requirement is one request for an add-on and the version it resolved to.
type Requirement struct {
	Requester  string // empty for a declared root
	Constraint string
	Version    string
}

func (r Requirement) String() string {
	who := r.Requester
	if who == "" {
		who = "project"
	}
	c := r.Constraint
	if c == "" {
		c = "*"
	}
	return fmt.Sprintf("%s requires %s (resolved %s)", who, c, r.Version)
}

// VersionConflictError reports two requests for the same add-on that resolve
// to different versions.
type VersionConflictError struct {
	Name   string
	First  Requirement
	Second Requirement
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict for %s: %s; %s", e.Name, e.First, e.Second)
}

// UnsatisfiableError means no published version matches a constraint.
type UnsatisfiableError struct {
	Name       string
	Constraint string
	Requester  string
	Available  []string
}

func (e *UnsatisfiableError) Error() string {
	who := e.Requester
	if who == "" {
		who = "project"
	}
	return fmt.Sprintf("no version of %s satisfies %q (required by %s; available: %s)",
		e.Name, e.Constraint, who, strings.Join(e.Available, ", "))
}

// InstallError reports a failure to fetch, extract or record one add-on.
type InstallError struct {
	Name    string
	Version string
	Err     error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("failed to install %s@%s: %v", e.Name, e.Version, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}
