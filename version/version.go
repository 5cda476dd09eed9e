package version

// version is overridden at release time via
// -ldflags "-X github.com/webshell-project/bootstrapper/version.version=...".
var version = "development"

// Version returns the bootstrapper's own build version.
func Version() string {
	return version
}
