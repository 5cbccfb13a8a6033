// Package version stamps every probe module fuelprobe emits with the
// output-format version it was built against, so a consumer loading a
// cached or disk-persisted probe module can refuse a format it predates.
package version

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// Format is the current probe-output format version. Bump the minor
// component for additive changes (a new export, a new param kind) and
// the major component whenever an existing probe's semantics change.
const Format = "v1.0.0"

func init() {
	if !semver.IsValid(Format) {
		panic("version: Format is not valid semver: " + Format)
	}
}

// Compatible reports whether a probe module stamped with producedBy can
// be consumed by a reader built against Format: same major version,
// producer at or below the reader's minor/patch.
func Compatible(producedBy string) bool {
	if !semver.IsValid(producedBy) {
		return false
	}
	if semver.Major(producedBy) != semver.Major(Format) {
		return false
	}
	return semver.Compare(producedBy, Format) <= 0
}

// Describe formats a version string alongside the running Format, for
// diagnostics when Compatible rejects a module.
func Describe(producedBy string) string {
	return fmt.Sprintf("produced by %s, reader is %s", producedBy, Format)
}
