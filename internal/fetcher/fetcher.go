package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/webshell-project/bootstrapper/internal/platform"
	"github.com/webshell-project/bootstrapper/version"
)

const (
	userAgent = "webshell-bootstrap/%s"

	// The connection phase is bounded, the body stream is not: archive
	// downloads legitimately run for minutes on slow links, so there is no
	// whole-request timeout. Cancellation comes from the caller's context.
	dialTimeout           = 30 * time.Second
	responseHeaderTimeout = 30 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second

	maxRedirects      = 10
	defaultMaxRetries = 3

	// installerSuffix is what the Windows distribution endpoint redirects
	// to; programmatic installer expansion is not supported, so the link is
	// rewritten to the zip build before following.
	installerSuffix = ".installer.exe"
	archiveSuffix   = ".zip"
)

// Format is the archive format inferred from the response content type.
type Format string

const (
	FormatDMG    Format = "dmg"
	FormatZip    Format = "zip"
	FormatTarBz2 Format = "tar.bz2"
)

// Extension returns the file extension used for the downloaded archive.
func (f Format) Extension() string {
	return string(f)
}

var formatsByContentType = map[string]Format{
	"application/x-apple-diskimage": FormatDMG,
	"application/zip":               FormatZip,
	"application/x-tar":             FormatTarBz2,
}

// Archive is a fully written download, ready for the platform installer.
type Archive struct {
	Path        string
	ContentType string
	Format      Format
}

// NetworkError wraps any transport-level download failure.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UnsupportedFormatError reports a response content type outside the known
// archive formats. It is never retried.
type UnsupportedFormatError struct {
	ContentType string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported archive content type %q", e.ContentType)
}

// Fetcher downloads archives, following redirects manually so installer
// links can be rewritten before they are chased.
type Fetcher struct {
	client                *http.Client
	rewriteInstallerLinks bool
	maxRetries            uint64
}

func New(profile platform.Profile) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
				TLSHandshakeTimeout:   tlsHandshakeTimeout,
				ResponseHeaderTimeout: responseHeaderTimeout,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		rewriteInstallerLinks: profile.OS == platform.Windows,
		maxRetries:            defaultMaxRetries,
	}
}

// RewriteInstallerURL maps an installer-executable link to its archive
// equivalent. Non-matching URLs pass through unchanged.
func RewriteInstallerURL(url string) string {
	if strings.HasSuffix(url, installerSuffix) {
		return strings.TrimSuffix(url, installerSuffix) + archiveSuffix
	}
	return url
}

// Fetch downloads the archive behind url into destDir, classifying its
// format from the final response's content type. Transient failures are
// retried with exponential backoff; an unrecognized content type fails fast.
func (f *Fetcher) Fetch(ctx context.Context, url, destDir string) (Archive, error) {
	var archive Archive

	operation := func() error {
		a, err := f.fetchOnce(ctx, url, destDir)
		if err != nil {
			var formatErr *UnsupportedFormatError
			if errors.As(err, &formatErr) {
				return backoff.Permanent(err)
			}
			log.Warnf("download attempt failed: %v", err)
			return err
		}
		archive = a
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.maxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return Archive{}, err
	}
	return archive, nil
}

// Download streams the body behind url to an exact destination path, without
// format classification. Used for auxiliary files written straight into the
// install tree.
func (f *Fetcher) Download(ctx context.Context, url, destPath string) error {
	resp, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if err := writeBody(resp.Body, destPath); err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	return nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, destDir string) (Archive, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return Archive{}, err
	}
	defer closeBody(resp)

	contentType := resp.Header.Get("Content-Type")
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	format, ok := formatsByContentType[mediaType]
	if !ok {
		return Archive{}, &UnsupportedFormatError{ContentType: contentType}
	}

	destPath := filepath.Join(destDir, "runtime."+format.Extension())
	if err := writeBody(resp.Body, destPath); err != nil {
		return Archive{}, &NetworkError{URL: url, Err: err}
	}

	return Archive{
		Path:        destPath,
		ContentType: contentType,
		Format:      format,
	}, nil
}

// get issues the request and follows redirects by hand, applying the
// installer-link rewrite on each hop when enabled. Returns the final
// non-redirect response with its body open.
func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	for i := 0; i < maxRedirects; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &NetworkError{URL: url, Err: err}
		}
		req.Header.Set("User-Agent", fmt.Sprintf(userAgent, version.Version()))

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &NetworkError{URL: url, Err: err}
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			closeBody(resp)
			if location == "" {
				return nil, &NetworkError{URL: url, Err: fmt.Errorf("redirect status %d without Location", resp.StatusCode)}
			}

			next, err := resp.Request.URL.Parse(location)
			if err != nil {
				return nil, &NetworkError{URL: url, Err: fmt.Errorf("invalid redirect target %q: %w", location, err)}
			}

			url = next.String()
			if f.rewriteInstallerLinks {
				rewritten := RewriteInstallerURL(url)
				if rewritten != url {
					log.Debugf("rewrote installer link %s to %s", url, rewritten)
					url = rewritten
				}
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			closeBody(resp)
			return nil, &NetworkError{URL: url, Err: fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)}
		}

		return resp, nil
	}

	return nil, &NetworkError{URL: url, Err: fmt.Errorf("more than %d redirects", maxRedirects)}
}

// writeBody streams the body to path. The file's flush-and-close is the
// completion signal; the response finishing alone is not enough.
func writeBody(body io.Reader, path string) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		cerr := out.Close()
		if err == nil {
			err = cerr
		}
	}()

	n, err := io.Copy(out, body)
	if err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}

	log.Debugf("wrote %d bytes to %s", n, path)
	return nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func closeBody(resp *http.Response) {
	if cerr := resp.Body.Close(); cerr != nil {
		log.Warnf("error closing response body: %v", cerr)
	}
}
