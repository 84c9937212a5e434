// Package version parses engine version expressions and add-on version
// constraints, and defines the ordering used to pick the best candidate.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel is a release channel. The well-known channels are Stable, RC and
// Dev; any other non-empty value is a custom channel (e.g. "beta3").
type Channel string

const (
	Stable Channel = "stable"
	RC     Channel = "rc"
	Dev    Channel = "dev"
)

// ParseChannel normalizes a channel token. An empty token is Stable.
func ParseChannel(s string) Channel {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "stable":
		return Stable
	case "rc":
		return RC
	case "dev":
		return Dev
	default:
		return Channel(s)
	}
}

// IsCustom reports whether c is not one of the well-known channels.
func (c Channel) IsCustom() bool {
	return c != Stable && c != RC && c != Dev
}

// Rank orders channels: stable > rc > dev > custom.
func (c Channel) Rank() int {
	switch c {
	case Stable:
		return 3
	case RC:
		return 2
	case Dev:
		return 1
	default:
		return 0
	}
}

// Version is a concrete major.minor.patch triple on a channel.
type Version struct {
	Major   uint
	Minor   uint
	Patch   uint
	Channel Channel
}

// ParseVersion parses a concrete version such as "4.1.2", "v4.1-rc" or
// "4.2.0-beta3". Missing minor/patch components default to zero.
func ParseVersion(s string) (Version, error) {
	spec, err := Parse(s)
	if err != nil {
		return Version{}, err
	}
	if spec.IsLatest() {
		return Version{}, fmt.Errorf("invalid version %q: a concrete version requires a major component", s)
	}
	v := Version{Major: *spec.Major, Channel: spec.Channel}
	if spec.Minor != nil {
		v.Minor = *spec.Minor
	}
	if spec.Patch != nil {
		v.Patch = *spec.Patch
	}
	return v, nil
}

// String renders the canonical form, e.g. "4.1.2-stable".
func (v Version) String() string {
	ch := v.Channel
	if ch == "" {
		ch = Stable
	}
	return fmt.Sprintf("%d.%d.%d-%s", v.Major, v.Minor, v.Patch, ch)
}

// Compare returns -1, 0 or 1 ordering by major, minor, patch and then channel
// rank. Two custom channels are ordered by compareCustom.
func Compare(a, b Version) int {
	if c := cmpUint(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmpUint(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmpUint(a.Patch, b.Patch); c != 0 {
		return c
	}
	ra, rb := a.Channel.Rank(), b.Channel.Rank()
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	if ra == 0 {
		return compareCustom(a.Channel, b.Channel)
	}
	return 0
}

// prereleaseRank orders the usual pre-release prefixes of custom channels.
// Unknown prefixes rank lowest and fall back to lexical order.
var prereleaseRank = map[string]int{"dev": 1, "alpha": 2, "beta": 3, "rc": 4}

// compareCustom orders custom channels by prefix, then by numeric suffix, so
// beta9 < beta10 and dev5 < alpha1 < beta1 < rc2. A bare prefix sorts before
// any numbered one.
func compareCustom(a, b Channel) int {
	pa, na := splitChannel(string(a))
	pb, nb := splitChannel(string(b))
	if pa != pb {
		if c := prereleaseRank[pa] - prereleaseRank[pb]; c != 0 {
			if c < 0 {
				return -1
			}
			return 1
		}
		return strings.Compare(pa, pb)
	}
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return strings.Compare(string(a), string(b))
}

// splitChannel separates a trailing decimal number from the channel prefix.
// A channel without one reports -1.
func splitChannel(s string) (string, int64) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, -1
	}
	n, err := strconv.ParseInt(s[i:], 10, 64)
	if err != nil {
		return s, -1
	}
	return s[:i], n
}

func cmpUint(a, b uint) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Spec is a user-declared engine version expression. Fixed components narrow
// the candidate set left to right; a Spec without Major is a "latest" wildcard
// within Channel.
type Spec struct {
	Major   *uint
	Minor   *uint
	Patch   *uint
	Channel Channel
	Raw     string
}

// IsLatest reports whether the spec floats to the newest release of its channel.
func (s Spec) IsLatest() bool {
	return s.Major == nil
}

// Matches reports whether v satisfies the fixed components and channel of s.
func (s Spec) Matches(v Version) bool {
	ch := s.Channel
	if ch == "" {
		ch = Stable
	}
	if v.Channel != ch {
		return false
	}
	if s.Major != nil && *s.Major != v.Major {
		return false
	}
	if s.Minor != nil && *s.Minor != v.Minor {
		return false
	}
	if s.Patch != nil && *s.Patch != v.Patch {
		return false
	}
	return true
}

func (s Spec) String() string {
	if s.Raw != "" {
		return s.Raw
	}
	if s.IsLatest() {
		return "latest-" + string(s.Channel)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d", *s.Major)
	if s.Minor != nil {
		fmt.Fprintf(&b, ".%d", *s.Minor)
	}
	if s.Patch != nil {
		fmt.Fprintf(&b, ".%d", *s.Patch)
	}
	b.WriteString("-" + string(s.Channel))
	return b.String()
}

// Parse parses a version expression.
//
// Accepted forms:
//
//	latest | latest-<channel>
//	[v]<major>[.<minor>[.<patch>]][-<channel>]
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("empty version expression")
	}
	spec := Spec{Raw: s, Channel: Stable}

	lower := strings.ToLower(s)
	if lower == "latest" {
		return spec, nil
	}
	if rest, ok := strings.CutPrefix(lower, "latest-"); ok {
		if rest == "" {
			return Spec{}, fmt.Errorf("invalid version expression %q: empty channel", raw)
		}
		spec.Channel = ParseChannel(rest)
		return spec, nil
	}

	numeric := strings.TrimPrefix(lower, "v")
	if head, channel, ok := strings.Cut(numeric, "-"); ok {
		if channel == "" {
			return Spec{}, fmt.Errorf("invalid version expression %q: empty channel", raw)
		}
		numeric = head
		spec.Channel = ParseChannel(channel)
	}

	parts := strings.Split(numeric, ".")
	if len(parts) > 3 {
		return Spec{}, fmt.Errorf("invalid version expression %q: too many components", raw)
	}
	fields := []**uint{&spec.Major, &spec.Minor, &spec.Patch}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Spec{}, fmt.Errorf("invalid version expression %q: component %q is not a number", raw, p)
		}
		u := uint(n)
		*fields[i] = &u
	}
	return spec, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(raw string) Spec {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}
