// Package version provides build version information for warden.
package version

import "runtime"

// Runtime is the plugin API version manifests compare minRuntimeVersion against.
const Runtime = "1.0.0"

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"
	// Commit is the git commit hash (set by build flags)
	Commit = "unknown"
	// BuildDate is the build date (set by build flags)
	BuildDate = "unknown"
)

// Info contains version and build information
type Info struct {
	Version   string `json:"version"`
	Runtime   string `json:"runtime"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the version information
func Get() Info {
	return Info{
		Version:   Version,
		Runtime:   Runtime,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns the version alone.
func (i Info) String() string {
	return i.Version
}

// Full returns a detailed version string with all build information
func (i Info) Full() string {
	return i.Version + " (plugin API " + i.Runtime + ", " + i.Commit + ") built " + i.BuildDate + " " + i.GoVersion + " " + i.Platform
}

// UserAgent is sent on outbound plugin HTTP requests.
func (i Info) UserAgent() string {
	return "warden/" + i.Version + " (" + i.Platform + ")"
}
