package generator

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SchemaVersion is the payload schema version written into document
// metadata when none is configured.
const SchemaVersion = "1.0.0"

// IsCompatible checks if version is compatible with SchemaVersion under a
// caret constraint: same major version, equal or newer minor and patch.
//
// Returns an error if version is not a valid semantic version.
func IsCompatible(version string) (bool, error) {
	constraint, err := semver.NewConstraint("^" + SchemaVersion)
	if err != nil {
		return false, fmt.Errorf("invalid schema version: %w", err)
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("invalid payload version %q: %w", version, err)
	}

	return constraint.Check(v), nil
}
