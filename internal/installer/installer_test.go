package installer

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webshell-project/bootstrapper/internal/fetcher"
	"github.com/webshell-project/bootstrapper/internal/platform"
)

func writeRuntimeZip(t *testing.T, path, topDir string) {
	t.Helper()
	out, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(out)
	for name, content := range map[string]string{
		topDir + "/xulrunner-bin":  "binary",
		topDir + "/chrome/toolkit": "toolkit",
		topDir + "/omni.ja":        "packed",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func linuxProfile(t *testing.T) platform.Profile {
	t.Helper()
	p, err := platform.ResolveFor("linux", "amd64", t.TempDir())
	require.NoError(t, err)
	return p
}

func TestInstallFromArchiveRenamesTopLevel(t *testing.T) {
	profile := linuxProfile(t)
	work := t.TempDir()

	archivePath := filepath.Join(work, "runtime.zip")
	writeRuntimeZip(t, archivePath, "xulrunner-nightly")

	err := New().Install(context.Background(), fetcher.Archive{Path: archivePath, Format: fetcher.FormatZip}, profile, work)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(profile.InstallRoot, "xulrunner-bin"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))
}

func TestInstallFromArchiveCanonicalNameNoRename(t *testing.T) {
	profile := linuxProfile(t)
	work := t.TempDir()

	archivePath := filepath.Join(work, "runtime.zip")
	writeRuntimeZip(t, archivePath, platform.RuntimeDirName)

	err := New().Install(context.Background(), fetcher.Archive{Path: archivePath, Format: fetcher.FormatZip}, profile, work)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(profile.InstallRoot, "omni.ja"))
}

func TestInstallIdempotent(t *testing.T) {
	profile := linuxProfile(t)
	work := t.TempDir()

	archivePath := filepath.Join(work, "runtime.zip")
	writeRuntimeZip(t, archivePath, "xulrunner-nightly")
	a := fetcher.Archive{Path: archivePath, Format: fetcher.FormatZip}

	inst := New()
	require.NoError(t, inst.Install(context.Background(), a, profile, work))

	// a stale file from a previous run must not survive the replacement
	stale := filepath.Join(profile.InstallRoot, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	require.NoError(t, inst.Install(context.Background(), a, profile, work))
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(profile.InstallRoot, "xulrunner-bin"))
}

func TestInstallFromDiskImage(t *testing.T) {
	outDir := t.TempDir()
	profile, err := platform.ResolveFor("darwin", "amd64", outDir)
	require.NoError(t, err)

	work := t.TempDir()

	var calls [][]string
	inst := New()
	inst.runCommand = func(ctx context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		if args[0] == "attach" {
			// simulate the mounted volume
			mount := args[3]
			appDir := filepath.Join(mount, "XUL.app", "Contents", "MacOS")
			require.NoError(t, os.MkdirAll(appDir, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(appDir, "xulrunner"), []byte("bin"), 0o755))
		}
		return nil
	}

	a := fetcher.Archive{Path: filepath.Join(work, "runtime.dmg"), Format: fetcher.FormatDMG}
	require.NoError(t, inst.Install(context.Background(), a, profile, work))

	require.Len(t, calls, 2)
	assert.Equal(t, "attach", calls[0][1])
	assert.Equal(t, "detach", calls[1][1])
	assert.FileExists(t, filepath.Join(profile.InstallRoot, "Contents", "MacOS", "xulrunner"))
}

func TestInstallDiskImageAttachFailure(t *testing.T) {
	profile, err := platform.ResolveFor("darwin", "amd64", t.TempDir())
	require.NoError(t, err)

	work := t.TempDir()

	var detachCalled bool
	inst := New()
	inst.runCommand = func(ctx context.Context, name string, args ...string) error {
		switch args[0] {
		case "attach":
			return &ExternalToolError{Tool: "hdiutil", ExitCode: 1}
		case "detach":
			detachCalled = true
		}
		return nil
	}

	a := fetcher.Archive{Path: filepath.Join(work, "runtime.dmg"), Format: fetcher.FormatDMG}
	err = inst.Install(context.Background(), a, profile, work)

	var toolErr *ExternalToolError
	require.Error(t, err)
	assert.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 1, toolErr.ExitCode)
	assert.False(t, detachCalled, "nothing to detach after a failed attach")
	assert.NoDirExists(t, profile.InstallRoot)
}

func TestInstallDiskImageDetachRunsAfterCopyFailure(t *testing.T) {
	profile, err := platform.ResolveFor("darwin", "amd64", t.TempDir())
	require.NoError(t, err)

	work := t.TempDir()

	var detachCalled bool
	inst := New()
	inst.runCommand = func(ctx context.Context, name string, args ...string) error {
		if args[0] == "detach" {
			detachCalled = true
		}
		// attach "succeeds" but mounts an empty volume, so the copy fails
		return nil
	}

	a := fetcher.Archive{Path: filepath.Join(work, "runtime.dmg"), Format: fetcher.FormatDMG}
	err = inst.Install(context.Background(), a, profile, work)

	require.Error(t, err)
	assert.True(t, detachCalled, "detach must run even when the copy fails")
}
