package release

import (
	"fmt"

	"github.com/godle-io/godle/internal/platform"
	"github.com/godle-io/godle/internal/version"
)

// NotFoundError means no release in the index matches the spec.
type NotFoundError struct {
	Spec     version.Spec
	Platform platform.ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no release matches version %q (channel %s) for %s", e.Spec.String(), e.Spec.Channel, e.Platform)
}

// UnsupportedPlatformError means matching releases exist but none ships an
// asset for the requested platform.
type UnsupportedPlatformError struct {
	Version   version.Version
	Platform  platform.ID
	Available []platform.ID
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("release %s has no asset for platform %s (available: %v)", e.Version, e.Platform, e.Available)
}
