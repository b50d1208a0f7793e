package manifest

import (
	"strconv"
	"strings"
)

// APIVersion is the numeric host API version a plugin targets.
type APIVersion float64

// Host API versions.
const (
	// APIVersion04 was withdrawn; manifests targeting it are rejected.
	APIVersion04 APIVersion = 0.4

	// APIVersion05 introduced permissions and mandatory help.
	APIVersion05 APIVersion = 0.5

	// APIVersion06 introduced command key bindings.
	APIVersion06 APIVersion = 0.6

	// APIVersion07 introduced pack plugins.
	APIVersion07 APIVersion = 0.7
)

// Feature gates.
const (
	PermissionsSince = APIVersion05
	KeybindingsSince = APIVersion06
	PacksSince       = APIVersion07
)

// supportedVersions is ordered oldest first.
var supportedVersions = []APIVersion{APIVersion05, APIVersion06, APIVersion07}

// String formats the version without trailing zeros.
func (v APIVersion) String() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}

// SupportedVersions returns the API versions the host accepts, oldest first.
func SupportedVersions() []APIVersion {
	out := make([]APIVersion, len(supportedVersions))
	copy(out, supportedVersions)
	return out
}

// CurrentVersion returns the newest supported API version.
func CurrentVersion() APIVersion {
	return supportedVersions[len(supportedVersions)-1]
}

// IsSupported returns true if v is in the supported set.
func IsSupported(v APIVersion) bool {
	for _, s := range supportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// AtLeast reports whether v is at or above min.
func (v APIVersion) AtLeast(min APIVersion) bool {
	return v >= min
}

func supportedList() string {
	parts := make([]string, len(supportedVersions))
	for i, v := range supportedVersions {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
