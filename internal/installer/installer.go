package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/webshell-project/bootstrapper/internal/archive"
	"github.com/webshell-project/bootstrapper/internal/fetcher"
	"github.com/webshell-project/bootstrapper/internal/fileutil"
	"github.com/webshell-project/bootstrapper/internal/platform"
)

// ExternalToolError reports a nonzero exit from an external process, carrying
// the exit code.
type ExternalToolError struct {
	Tool     string
	ExitCode int
	Output   string
}

func (e *ExternalToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
}

// Installer replaces the install tree with the contents of a downloaded
// archive. The replacement is remove-then-extract; the tree is only
// inconsistent during that narrow window.
type Installer struct {
	// runCommand is swapped in tests so disk-image handling can be
	// exercised without macOS.
	runCommand func(ctx context.Context, name string, args ...string) error
}

func New() *Installer {
	return &Installer{runCommand: runCommand}
}

// WithCommandRunner replaces the external process runner, used by tests to
// stub the disk-image tooling.
func (i *Installer) WithCommandRunner(fn func(ctx context.Context, name string, args ...string) error) *Installer {
	i.runCommand = fn
	return i
}

// Install expands the archive into the profile's install root. Windows and
// Linux builds ship as plain archives; macOS builds ship as disk images that
// have to be mounted and copied.
func (i *Installer) Install(ctx context.Context, a fetcher.Archive, profile platform.Profile, workDir string) error {
	if profile.OS == platform.MacOS {
		return i.installFromDiskImage(ctx, a, profile, workDir)
	}
	return i.installFromArchive(a, profile)
}

// installFromArchive removes the previous tree, expands the archive into the
// install root's parent and renames the single extracted top-level directory
// to the canonical name.
func (i *Installer) installFromArchive(a fetcher.Archive, profile platform.Profile) error {
	parent := filepath.Dir(profile.InstallRoot)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", parent, err)
	}

	if err := os.RemoveAll(profile.InstallRoot); err != nil {
		return fmt.Errorf("remove previous install tree %s: %w", profile.InstallRoot, err)
	}

	tops, err := archive.Extract(a, parent, archive.Overwrite)
	if err != nil {
		return err
	}
	if len(tops) != 1 {
		return &archive.ExtractionError{
			Archive: a.Path,
			Err:     fmt.Errorf("expected a single top-level directory, found %d (%s)", len(tops), strings.Join(tops, ", ")),
		}
	}

	extracted := filepath.Join(parent, tops[0])
	if extracted == profile.InstallRoot {
		return nil
	}

	log.Debugf("renaming %s to %s", extracted, profile.InstallRoot)
	if err := os.Rename(extracted, profile.InstallRoot); err != nil {
		return fmt.Errorf("rename extracted directory: %w", err)
	}
	return nil
}

// installFromDiskImage mounts the image, copies the contained application
// bundle over the install root and detaches the mount. Detach runs even when
// the copy fails so a mounted volume is never leaked.
func (i *Installer) installFromDiskImage(ctx context.Context, a fetcher.Archive, profile platform.Profile, workDir string) error {
	mountPoint := filepath.Join(workDir, "mount")
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("create mount point %s: %w", mountPoint, err)
	}

	if err := i.runCommand(ctx, "hdiutil", "attach", a.Path, "-mountpoint", mountPoint, "-nobrowse", "-quiet"); err != nil {
		return fmt.Errorf("attach disk image: %w", err)
	}

	var merr *multierror.Error
	if err := copyBundleFromMount(mountPoint, profile); err != nil {
		merr = multierror.Append(merr, err)
	}

	if err := i.runCommand(ctx, "hdiutil", "detach", mountPoint, "-quiet"); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("detach disk image: %w", err))
	}

	return merr.ErrorOrNil()
}

func copyBundleFromMount(mountPoint string, profile platform.Profile) error {
	entries, err := os.ReadDir(mountPoint)
	if err != nil {
		return fmt.Errorf("read mounted volume: %w", err)
	}

	var bundle string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".app") {
			bundle = filepath.Join(mountPoint, entry.Name())
			break
		}
	}
	if bundle == "" {
		return &archive.ExtractionError{Archive: mountPoint, Err: errors.New("no application bundle in disk image")}
	}

	if err := os.MkdirAll(filepath.Dir(profile.InstallRoot), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.RemoveAll(profile.InstallRoot); err != nil {
		return fmt.Errorf("remove previous install tree %s: %w", profile.InstallRoot, err)
	}

	log.Debugf("copying %s to %s", bundle, profile.InstallRoot)
	if err := fileutil.CopyTree(bundle, profile.InstallRoot); err != nil {
		return fmt.Errorf("copy application bundle: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExternalToolError{
				Tool:     name,
				ExitCode: exitErr.ExitCode(),
				Output:   strings.TrimSpace(string(out)),
			}
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}
