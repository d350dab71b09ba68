package prof

import "github.com/kolkov/dynprof/internal/prof/loader"

// Version information for the profiler runtime.
const (
	// Version is the current version of the profiler runtime.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0

	// PluginAPIVersion is the version analysis plugins declare in their
	// APIVersion symbol.
	PluginAPIVersion = loader.APIVersion
)

// Info provides runtime information about the profiler.
type Info struct {
	// Version is the runtime version string.
	Version string

	// PluginAPI is the version analysis plugins must be built against
	// (same major).
	PluginAPI string

	// Analyses lists the built-in analyses.
	Analyses []string
}

// GetInfo returns information about the profiler runtime.
//
// Example:
//
//	info := prof.GetInfo()
//	fmt.Printf("dynprof %s (plugin API %s)\n", info.Version, info.PluginAPI)
func GetInfo() Info {
	return Info{
		Version:   Version,
		PluginAPI: PluginAPIVersion,
		Analyses:  Analyses(),
	}
}
