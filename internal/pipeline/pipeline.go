package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/webshell-project/bootstrapper/internal/fetcher"
	"github.com/webshell-project/bootstrapper/internal/grafter"
	"github.com/webshell-project/bootstrapper/internal/installer"
	"github.com/webshell-project/bootstrapper/internal/launcher"
	"github.com/webshell-project/bootstrapper/internal/platform"
	"github.com/webshell-project/bootstrapper/internal/updater"
)

// Options configure one provisioning run.
type Options struct {
	Profile platform.Profile
	// BundleDir is the companion application's source distribution.
	BundleDir string
	// Force skips the version check and always downloads.
	Force bool

	PluginSupport    bool
	PluginSupportURL string
}

// state carries the intermediate artifacts between stages. Each stage reads
// what the previous ones produced; nothing is threaded through closures.
type state struct {
	workDir    string
	descriptor updater.BuildDescriptor
	archive    fetcher.Archive
}

// Pipeline runs the provisioning sequence: version check, download, install,
// graft, launcher. Cleanup of the temporary workspace runs unconditionally.
type Pipeline struct {
	opts      Options
	oracle    *updater.Oracle
	fetcher   *fetcher.Fetcher
	installer *installer.Installer
	grafter   *grafter.Grafter
	reporter  Reporter
}

func New(opts Options) *Pipeline {
	f := fetcher.New(opts.Profile)
	return &Pipeline{
		opts:      opts,
		oracle:    updater.New(filepath.Join(opts.Profile.OutputDir, updater.RecordFileName)),
		fetcher:   f,
		installer: installer.New(),
		grafter:   grafter.New(f),
		reporter:  NewConsoleReporter(os.Stdout),
	}
}

// WithReporter overrides the progress output destination.
func (p *Pipeline) WithReporter(r Reporter) *Pipeline {
	p.reporter = r
	return p
}

// WithInstaller swaps the platform installer, used to stub the disk-image
// tooling in tests.
func (p *Pipeline) WithInstaller(inst *installer.Installer) *Pipeline {
	p.installer = inst
	return p
}

// Run executes the pipeline. A fatal step aborts the remaining ones; the
// temporary workspace is removed on every exit path.
func (p *Pipeline) Run(ctx context.Context) error {
	workDir, err := os.MkdirTemp("", "webshell-bootstrap-*")
	if err != nil {
		return fmt.Errorf("create temporary workspace: %w", err)
	}

	st := &state{workDir: workDir}
	defer func() {
		if cerr := cleanup(st); cerr != nil {
			log.Warnf("cleanup failed: %v", cerr)
		}
	}()

	// The oracle cannot fail the run: a broken metadata fetch already
	// degrades to "not up to date" internally, so this stage only reports.
	res := p.oracle.CheckForUpdate(ctx, p.opts.Profile)
	st.descriptor = res.Descriptor
	p.reporter.StepDone("checking installed runtime version")

	if res.UpToDate && !p.opts.Force {
		p.reporter.Info("runtime is up to date, nothing to do")
		return nil
	}

	if err := p.step("downloading runtime archive", func() error {
		archive, err := p.fetcher.Fetch(ctx, p.opts.Profile.DownloadBinaryURL, st.workDir)
		if err != nil {
			return err
		}
		st.archive = archive
		// The record is written only now, after the download finished,
		// so a failed download never records an uninstalled build.
		return p.oracle.PersistDescriptor(st.descriptor)
	}); err != nil {
		return err
	}

	if err := p.step("installing runtime", func() error {
		return p.installer.Install(ctx, st.archive, p.opts.Profile, st.workDir)
	}); err != nil {
		return err
	}

	if err := p.step("grafting application bundle", func() error {
		return p.grafter.Graft(ctx, p.opts.Profile, grafter.Options{
			BundleDir:        p.opts.BundleDir,
			PluginSupport:    p.opts.PluginSupport,
			PluginSupportURL: p.opts.PluginSupportURL,
		})
	}); err != nil {
		return err
	}

	if err := p.step("installing launcher", func() error {
		return launcher.Install(p.opts.Profile)
	}); err != nil {
		return err
	}

	return nil
}

func (p *Pipeline) step(name string, fn func() error) error {
	if err := fn(); err != nil {
		p.reporter.StepFailed(name, err)
		return err
	}
	p.reporter.StepDone(name)
	return nil
}

func cleanup(st *state) error {
	var merr *multierror.Error

	if st.archive.Path != "" {
		if err := os.Remove(st.archive.Path); err != nil && !os.IsNotExist(err) {
			merr = multierror.Append(merr, fmt.Errorf("remove archive: %w", err))
		}
	}
	if err := os.RemoveAll(st.workDir); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("remove workspace: %w", err))
	}

	return merr.ErrorOrNil()
}
