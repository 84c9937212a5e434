package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Constraint is an add-on version range such as ">=1.0", "^2" or "1.2.3".
// The zero value and the expressions "", "*" and "latest" accept any version.
type Constraint struct {
	raw string
	c   *semver.Constraints
}

// ParseConstraint parses an add-on version range.
func ParseConstraint(raw string) (Constraint, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "*", "latest":
		return Constraint{raw: s}, nil
	}
	c, err := semver.NewConstraint(s)
	if err != nil {
		return Constraint{}, fmt.Errorf("invalid version constraint %q: %w", raw, err)
	}
	return Constraint{raw: s, c: c}, nil
}

func (c Constraint) String() string {
	if c.raw == "" {
		return "*"
	}
	return c.raw
}

// Check reports whether the version string satisfies the constraint.
// Strings that are not valid semantic versions never match.
func (c Constraint) Check(v string) bool {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return false
	}
	if c.c == nil {
		return sv.Prerelease() == ""
	}
	return c.c.Check(sv)
}

// Best returns the greatest version in versions that satisfies the
// constraint. The returned string is the catalog's original spelling.
func (c Constraint) Best(versions []string) (string, bool) {
	type candidate struct {
		raw string
		v   *semver.Version
	}
	var matches []candidate
	for _, raw := range versions {
		if !c.Check(raw) {
			continue
		}
		sv, _ := semver.NewVersion(raw)
		matches = append(matches, candidate{raw: raw, v: sv})
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].v.LessThan(matches[j].v)
	})
	return matches[len(matches)-1].raw, true
}

// SameVersion reports whether two version strings denote the same semantic
// version ("1.2" and "1.2.0" are equal). Unparseable strings compare literally.
func SameVersion(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return va.Equal(vb)
}
