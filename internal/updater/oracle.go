package updater

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"

	"github.com/webshell-project/bootstrapper/internal/platform"
)

const (
	// RecordFileName is the persisted version record, relative to the
	// output directory.
	RecordFileName = "installed-build.json"

	metadataTimeout = 30 * time.Second
	maxMetadataSize = 1 << 20
)

// Result is the oracle's verdict for one run.
type Result struct {
	UpToDate bool
	// Descriptor is the remote build metadata, zero when the platform has
	// no metadata endpoint or the fetch failed.
	Descriptor BuildDescriptor
}

// Oracle decides whether a download is required by comparing the persisted
// version record against the remote metadata document.
type Oracle struct {
	recordPath string
	httpClient *http.Client
}

func New(recordPath string) *Oracle {
	return &Oracle{
		recordPath: recordPath,
		httpClient: &http.Client{Timeout: metadataTimeout},
	}
}

// CheckForUpdate fetches the remote descriptor and compares it to the stored
// one. A failed metadata fetch is deliberately treated as "update available":
// re-downloading a current build is cheaper than skipping a needed one.
func (o *Oracle) CheckForUpdate(ctx context.Context, profile platform.Profile) Result {
	if profile.DownloadInfoURL == "" {
		log.Debugf("no metadata endpoint for %s, forcing download", profile.OS)
		return Result{UpToDate: false}
	}

	stored := o.loadRecord()

	remote, err := o.fetchDescriptor(ctx, profile.DownloadInfoURL)
	if err != nil {
		log.Warnf("metadata check failed, downloading anyway: %v", err)
		return Result{UpToDate: false}
	}

	return Result{
		UpToDate:   stored.Equal(remote),
		Descriptor: remote,
	}
}

// PersistDescriptor writes the version record. Called after a successful
// download so a failed one never records a build that was not installed.
// Zero descriptors are skipped: there is nothing worth recording.
func (o *Oracle) PersistDescriptor(desc BuildDescriptor) error {
	if desc.IsZero() {
		return nil
	}

	data, err := json.MarshalIndent(desc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal version record: %w", err)
	}

	if err := atomic.WriteFile(o.recordPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write version record %s: %w", o.recordPath, err)
	}
	return nil
}

// RecordPath returns the location of the persisted version record.
func (o *Oracle) RecordPath() string {
	return o.recordPath
}

// loadRecord reads the persisted descriptor. A missing or unparsable record
// means "no prior build", never a fatal error.
func (o *Oracle) loadRecord() BuildDescriptor {
	data, err := os.ReadFile(o.recordPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("failed to read version record %s: %v", o.recordPath, err)
		}
		return BuildDescriptor{}
	}

	var desc BuildDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		log.Warnf("unparsable version record %s: %v", o.recordPath, err)
		return BuildDescriptor{}
	}
	return desc
}

func (o *Oracle) fetchDescriptor(ctx context.Context, url string) (BuildDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return BuildDescriptor{}, fmt.Errorf("create metadata request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return BuildDescriptor{}, fmt.Errorf("fetch metadata: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing metadata response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return BuildDescriptor{}, fmt.Errorf("metadata endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return BuildDescriptor{}, fmt.Errorf("read metadata body: %w", err)
	}

	var desc BuildDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return BuildDescriptor{}, fmt.Errorf("parse metadata document: %w", err)
	}
	return desc, nil
}
