package grafter

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/webshell-project/bootstrapper/internal/archive"
	"github.com/webshell-project/bootstrapper/internal/fetcher"
	"github.com/webshell-project/bootstrapper/internal/fileutil"
	"github.com/webshell-project/bootstrapper/internal/platform"
)

const (
	// CompanionDirName is the subdirectory of the runtime resources the
	// shell application is grafted into.
	CompanionDirName = "webshell"

	// nestedArchiveName is the runtime's packed resource archive; its
	// contents are needed by the embedded developer tools.
	nestedArchiveName = "omni.ja"
	nestedExtractDir  = "omni"
)

// bundleEntries is the fixed companion-application file set copied into the
// install tree. Every entry must exist in the source distribution.
var bundleEntries = []string{
	"application.ini",
	"chrome",
	"chrome.manifest",
	"components",
	"defaults",
	"devtools.manifest",
	"modules",
}

// MissingFileError reports an expected companion or runtime file that is
// absent during grafting. A corrupted download typically surfaces here.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("missing expected file: %s", e.Path)
}

// Options control the graft.
type Options struct {
	// BundleDir is the companion application's source distribution.
	BundleDir string
	// PluginSupport enables the optional support-library download.
	PluginSupport bool
	// PluginSupportURL is where the support library is fetched from.
	PluginSupportURL string
}

// Grafter copies the companion application into a freshly installed runtime
// tree and exposes the runtime's packed devtools resources.
type Grafter struct {
	fetcher *fetcher.Fetcher
}

func New(f *fetcher.Fetcher) *Grafter {
	return &Grafter{fetcher: f}
}

// Graft runs all post-install file work: companion copy, nested archive
// extraction, preference propagation and the optional support library.
func (g *Grafter) Graft(ctx context.Context, profile platform.Profile, opts Options) error {
	companionDir := filepath.Join(profile.Resources, CompanionDirName)
	if err := os.MkdirAll(companionDir, 0o755); err != nil {
		return fmt.Errorf("create companion directory %s: %w", companionDir, err)
	}

	for _, entry := range bundleEntries {
		src := filepath.Join(opts.BundleDir, entry)
		if !fileutil.Exists(src) {
			return &MissingFileError{Path: src}
		}
		if err := fileutil.CopyAny(src, filepath.Join(companionDir, entry)); err != nil {
			return fmt.Errorf("copy companion entry %s: %w", entry, err)
		}
	}

	if err := g.extractNestedArchive(profile); err != nil {
		return err
	}

	if err := g.copyPreferences(profile, companionDir); err != nil {
		return err
	}

	if opts.PluginSupport {
		if err := g.installPluginSupport(ctx, companionDir, opts.PluginSupportURL); err != nil {
			return err
		}
	}

	return nil
}

// extractNestedArchive expands the runtime's packed resource archive. The
// archive is zip format and ships entries that collide with files already on
// disk, so the extraction overwrites conflicts instead of skipping them.
func (g *Grafter) extractNestedArchive(profile platform.Profile) error {
	nested := filepath.Join(profile.Resources, nestedArchiveName)
	if !fileutil.Exists(nested) {
		return &MissingFileError{Path: nested}
	}

	destDir := filepath.Join(profile.Resources, nestedExtractDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create extraction directory %s: %w", destDir, err)
	}

	if _, err := archive.ExtractZip(nested, destDir, archive.Overwrite); err != nil {
		return err
	}
	log.Debugf("extracted %s into %s", nested, destDir)
	return nil
}

// copyPreferences propagates every default preference file shipped in the
// extracted nested archive into the companion application.
func (g *Grafter) copyPreferences(profile platform.Profile, companionDir string) error {
	srcDir := filepath.Join(profile.Resources, nestedExtractDir, "defaults", "preferences")
	pattern := filepath.Join(srcDir, "*.js")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("match preference files %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return &MissingFileError{Path: pattern}
	}

	destDir := filepath.Join(companionDir, "defaults", "preferences")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create preferences directory %s: %w", destDir, err)
	}

	for _, src := range matches {
		name := filepath.Base(src)
		if err := fileutil.CopyFile(src, filepath.Join(destDir, name)); err != nil {
			return fmt.Errorf("copy preference file %s: %w", name, err)
		}
	}
	return nil
}

// installPluginSupport downloads the third-party support library into the
// companion directory and registers its path in the preferences file.
func (g *Grafter) installPluginSupport(ctx context.Context, companionDir, rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("plugin support enabled but no download URL configured")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid plugin support URL %q: %w", rawURL, err)
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return fmt.Errorf("plugin support URL %q has no file name", rawURL)
	}

	dest := filepath.Join(companionDir, name)
	if err := g.fetcher.Download(ctx, rawURL, dest); err != nil {
		return fmt.Errorf("download plugin support library: %w", err)
	}

	prefsPath := filepath.Join(companionDir, "defaults", "preferences", "webshell.js")
	line := fmt.Sprintf("pref(%q, %q);\n", "webshell.plugin.path", dest)

	f, err := os.OpenFile(prefsPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open preferences file %s: %w", prefsPath, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Warnf("error closing preferences file: %v", cerr)
		}
	}()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append plugin preference: %w", err)
	}
	return nil
}
