package launcher

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/webshell-project/bootstrapper/internal/platform"
)

const sampleManifest = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleExecutable</key>
	<string>xulrunner</string>
	<key>CFBundleIdentifier</key>
	<string>org.mozilla.xulrunner</string>
	<key>CFBundleVersion</key>
	<string>1.9.2</string>
	<key>LSMinimumSystemVersion</key>
	<string>10.5</string>
</dict>
</plist>
`

func TestInstallWindowsStub(t *testing.T) {
	profile, err := platform.ResolveFor("windows", "amd64", t.TempDir())
	require.NoError(t, err)

	require.NoError(t, Install(profile))

	data, err := os.ReadFile(filepath.Join(profile.Executables, StubNameWindows))
	require.NoError(t, err)
	assert.Contains(t, string(data), "@echo off")
}

func TestInstallLinuxStub(t *testing.T) {
	profile, err := platform.ResolveFor("linux", "amd64", t.TempDir())
	require.NoError(t, err)

	require.NoError(t, Install(profile))

	stub := filepath.Join(profile.Executables, StubNamePosix)
	data, err := os.ReadFile(stub)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#!/bin/sh")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(stub)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode().Perm()&0o111, "stub must be executable")
	}
}

func TestInstallMacPatchesManifest(t *testing.T) {
	profile, err := platform.ResolveFor("darwin", "amd64", t.TempDir())
	require.NoError(t, err)

	manifestPath := filepath.Join(profile.InstallRoot, "Contents", "Info.plist")
	require.NoError(t, os.MkdirAll(filepath.Dir(manifestPath), 0o755))
	require.NoError(t, os.WriteFile(manifestPath, []byte(sampleManifest), 0o644))

	require.NoError(t, Install(profile))

	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	var manifest map[string]interface{}
	_, err = plist.Unmarshal(data, &manifest)
	require.NoError(t, err)

	assert.Equal(t, StubNamePosix, manifest["CFBundleExecutable"])
	// every other field survives the round trip
	assert.Equal(t, "org.mozilla.xulrunner", manifest["CFBundleIdentifier"])
	assert.Equal(t, "1.9.2", manifest["CFBundleVersion"])
	assert.Equal(t, "10.5", manifest["LSMinimumSystemVersion"])
}

func TestInstallMacMissingManifest(t *testing.T) {
	profile, err := platform.ResolveFor("darwin", "amd64", t.TempDir())
	require.NoError(t, err)

	err = Install(profile)
	require.Error(t, err)
}
