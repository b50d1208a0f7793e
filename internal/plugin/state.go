package plugin

// Status is the lifecycle status of a registry entry.
type Status string

// Plugin statuses.
const (
	// StatusRegistered - known and valid, never activated or freshly replaced.
	StatusRegistered Status = "registered"

	// StatusActivated - at least one context is running.
	StatusActivated Status = "activated"

	// StatusDeactivated - the last context was torn down.
	StatusDeactivated Status = "deactivated"

	// StatusDisabled - switched off by the user; never activated.
	StatusDisabled Status = "disabled"

	// StatusErrored - activation failed.
	StatusErrored Status = "errored"

	// StatusIncompatible - the manifest did not validate.
	StatusIncompatible Status = "incompatible"

	// StatusReactivating - hot reload is re-activating a captured context.
	StatusReactivating Status = "reactivating"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// Blocked returns true for statuses activation must skip. A blocked plugin
// has no live context.
func (s Status) Blocked() bool {
	return s == StatusErrored || s == StatusIncompatible || s == StatusDisabled
}

// Source says where a plugin came from.
type Source string

// Plugin sources.
const (
	SourceBuiltin     Source = "builtin"
	SourceCommunity   Source = "community"
	SourceMarketplace Source = "marketplace"
)
