package archive

import (
	"fmt"

	"github.com/webshell-project/bootstrapper/internal/fetcher"
)

// ConflictPolicy decides what happens when an archive entry collides with a
// file already on disk. It is an explicit parameter of every extraction so a
// silently-skipping extractor can never reappear by accident.
type ConflictPolicy int

const (
	// SkipExisting leaves files already on disk untouched.
	SkipExisting ConflictPolicy = iota
	// Overwrite replaces files already on disk with the archive entry.
	Overwrite
)

// ExtractionError wraps any archive expansion failure.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extract expands a downloaded archive into destDir and returns the names of
// the top-level entries it created. Disk images are not handled here; they
// are mounted by the platform installer instead.
func Extract(a fetcher.Archive, destDir string, policy ConflictPolicy) ([]string, error) {
	switch a.Format {
	case fetcher.FormatZip:
		return ExtractZip(a.Path, destDir, policy)
	case fetcher.FormatTarBz2:
		return ExtractTarBz2(a.Path, destDir, policy)
	default:
		return nil, &ExtractionError{Archive: a.Path, Err: fmt.Errorf("no extractor for format %q", a.Format)}
	}
}
