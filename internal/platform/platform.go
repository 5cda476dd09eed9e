package platform

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// OS identifies the operating system family of the install target. Values
// match runtime.GOOS so a profile can be resolved straight from the build
// environment.
type OS string

const (
	Windows OS = "windows"
	Linux   OS = "linux"
	MacOS   OS = "darwin"
)

type Arch string

const (
	X86 Arch = "386"
	X64 Arch = "amd64"
)

const (
	// RuntimeDirName is the flat runtime directory used on Windows and Linux.
	RuntimeDirName = "xulrunner"
	// BundleName is the application bundle used on macOS.
	BundleName = "XUL.app"
)

const binaryEndpoint = "https://download.mozilla.org/?product=xulrunner-nightly-latest&os=%s&lang=en-US"

// metadataEndpoints lists the per-OS build metadata URLs. Linux nightlies do
// not publish a metadata document, so the oracle always reports "not up to
// date" there and the pipeline re-downloads on every run.
var metadataEndpoints = map[OS]string{
	Windows: "https://download.cdn.mozilla.net/pub/xulrunner/nightly/latest-trunk/xulrunner.win32.json",
	MacOS:   "https://download.cdn.mozilla.net/pub/xulrunner/nightly/latest-trunk/xulrunner.mac.json",
}

var binaryOSTokens = map[OS]map[Arch]string{
	Windows: {X86: "win", X64: "win64"},
	Linux:   {X86: "linux", X64: "linux64"},
	MacOS:   {X64: "osx"},
}

// Profile carries every environment-derived value the pipeline needs. It is
// resolved once at startup and passed explicitly to each stage; nothing else
// in the codebase consults runtime.GOOS.
type Profile struct {
	OS   OS
	Arch Arch

	// DownloadInfoURL is the build metadata endpoint, empty when the
	// platform has none.
	DownloadInfoURL string
	// DownloadBinaryURL is the redirect-based distribution endpoint for the
	// runtime archive.
	DownloadBinaryURL string

	// OutputDir is the directory the install tree and the version record
	// live in.
	OutputDir string
	// InstallRoot is the runtime directory (flat dir or .app bundle).
	InstallRoot string
	// Resources is the directory grafted companion files go into.
	Resources string
	// Executables is the directory the launcher stub goes into.
	Executables string
}

// ConfigurationError reports an OS/architecture combination the tool has no
// install semantics for. It is raised before any network or filesystem
// activity.
type ConfigurationError struct {
	GOOS   string
	GOARCH string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unsupported platform %s/%s", e.GOOS, e.GOARCH)
}

// Resolve builds the profile for the host platform.
func Resolve(outputDir string) (Profile, error) {
	return ResolveFor(runtime.GOOS, runtime.GOARCH, outputDir)
}

// ResolveFor builds the profile for an explicit GOOS/GOARCH pair. All fields
// are populated from static tables; no I/O is performed.
func ResolveFor(goos, goarch, outputDir string) (Profile, error) {
	os := OS(goos)
	arch := Arch(goarch)

	token, ok := binaryOSTokens[os][arch]
	if !ok {
		return Profile{}, &ConfigurationError{GOOS: goos, GOARCH: goarch}
	}

	p := Profile{
		OS:                os,
		Arch:              arch,
		DownloadInfoURL:   metadataEndpoints[os],
		DownloadBinaryURL: fmt.Sprintf(binaryEndpoint, token),
		OutputDir:         outputDir,
	}

	if os == MacOS {
		p.InstallRoot = filepath.Join(outputDir, BundleName)
		p.Resources = filepath.Join(p.InstallRoot, "Contents", "Resources")
		p.Executables = filepath.Join(p.InstallRoot, "Contents", "MacOS")
	} else {
		p.InstallRoot = filepath.Join(outputDir, RuntimeDirName)
		p.Resources = p.InstallRoot
		p.Executables = p.InstallRoot
	}

	return p, nil
}
