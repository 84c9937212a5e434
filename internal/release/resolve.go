package release

import (
	"fmt"
	"sort"

	"github.com/godle-io/godle/internal/cache"
	"github.com/godle-io/godle/internal/download"
	"github.com/godle-io/godle/internal/platform"
	"github.com/godle-io/godle/internal/version"
)

// Ref is a concrete, downloadable engine release for one platform. Refs are
// only produced by Resolve.
type Ref struct {
	Version  version.Version
	Platform platform.ID
	URL      string
	Filename string
	Checksum string
}

// Key returns the cache key of the release asset. The same version on the
// same platform always maps to the same key.
func (r Ref) Key() cache.Key {
	return cache.KeyFor("engine", r.Version.String(), r.Platform.String())
}

// Source returns the download source of the asset.
func (r Ref) Source() download.Source {
	return download.Source{URL: r.URL, Checksum: r.Checksum, Filename: r.Filename}
}

// Resolve selects the greatest release matching spec that ships an asset for
// p. It performs no I/O and is deterministic for a given index.
//
// When spec matches releases in the index but none of them has an asset for
// p, the result is an UnsupportedPlatformError naming the newest match.
func Resolve(spec version.Spec, p platform.ID, idx *Index) (Ref, error) {
	if idx == nil {
		return Ref{}, fmt.Errorf("release index is nil")
	}

	var (
		best        *asset
		newestOther *asset
	)
	for i := range idx.parsed {
		a := &idx.parsed[i]
		if !spec.Matches(a.version) {
			continue
		}
		if a.platform != p {
			if newestOther == nil || version.Compare(a.version, newestOther.version) > 0 {
				newestOther = a
			}
			continue
		}
		// Strictly greater keeps the first listed entry among duplicates.
		if best == nil || version.Compare(a.version, best.version) > 0 {
			best = a
		}
	}

	if best == nil {
		if newestOther != nil {
			return Ref{}, &UnsupportedPlatformError{
				Version:   newestOther.version,
				Platform:  p,
				Available: idx.platformsFor(newestOther.version),
			}
		}
		return Ref{}, &NotFoundError{Spec: spec, Platform: p}
	}

	filename := best.entry.Filename
	if filename == "" {
		filename = download.FilenameFromURL(best.entry.URL)
	}
	return Ref{
		Version:  best.version,
		Platform: best.platform,
		URL:      best.entry.URL,
		Filename: filename,
		Checksum: best.entry.Checksum,
	}, nil
}

func (idx *Index) platformsFor(v version.Version) []platform.ID {
	seen := make(map[platform.ID]bool)
	var out []platform.ID
	for _, a := range idx.parsed {
		if version.Compare(a.version, v) == 0 && !seen[a.platform] {
			seen[a.platform] = true
			out = append(out, a.platform)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Versions returns every distinct version in the index, newest first.
func (idx *Index) Versions() []version.Version {
	seen := make(map[version.Version]bool)
	var out []version.Version
	for _, a := range idx.parsed {
		if !seen[a.version] {
			seen[a.version] = true
			out = append(out, a.version)
		}
	}
	sort.Slice(out, func(i, j int) bool { return version.Compare(out[i], out[j]) > 0 })
	return out
}
