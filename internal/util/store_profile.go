package util

import "path/filepath"

// StoreProfile describes how the metrics database should be opened
type StoreProfile struct {
	NetworkOptimized bool
	Mount            *MountInfo // nil when forced or undetected
}

// ProfileForStore decides whether the metrics database needs the
// network-filesystem pragmas. An explicit nasMode overrides detection. The
// database file may not exist yet, so its directory is classified.
func ProfileForStore(dbPath string, nasMode *bool) *StoreProfile {
	if nasMode != nil {
		DebugLog("NAS mode: explicitly set to %v", *nasMode)
		return &StoreProfile{NetworkOptimized: *nasMode}
	}

	mount, err := DetectMount(filepath.Dir(dbPath))
	if err != nil {
		WarnLog("Cannot classify metrics store location, assuming local: %v", err)
		return &StoreProfile{}
	}
	if !mount.Network {
		return &StoreProfile{}
	}
	InfoLog("Metrics store is on a network filesystem (%s)", mount)
	return &StoreProfile{NetworkOptimized: true, Mount: mount}
}

// String returns a one-line description of the profile
func (p *StoreProfile) String() string {
	switch {
	case !p.NetworkOptimized:
		return "local filesystem"
	case p.Mount == nil:
		return "network-optimized (forced)"
	default:
		return "network-optimized (" + p.Mount.String() + ")"
	}
}
