package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ExtractZip expands a zip archive into destDir. Conflicting entries are
// handled per policy; with Overwrite, later entries win even when the archive
// itself contains duplicate names (nested runtime archives are known to ship
// colliding manifest entries).
func ExtractZip(src, destDir string, policy ConflictPolicy) ([]string, error) {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return nil, &ExtractionError{Archive: src, Err: err}
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			log.Warnf("error closing zip reader %s: %v", src, cerr)
		}
	}()

	tops := newTopLevelSet()

	for _, file := range reader.File {
		target, err := securePath(destDir, file.Name)
		if err != nil {
			return nil, &ExtractionError{Archive: src, Err: err}
		}
		tops.add(file.Name)

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, dirMode(file.Mode())); err != nil {
				return nil, &ExtractionError{Archive: src, Err: err}
			}
			continue
		}

		if err := writeZipEntry(file, target, policy); err != nil {
			return nil, &ExtractionError{Archive: src, Err: err}
		}
	}

	return tops.names(), nil
}

func writeZipEntry(file *zip.File, target string, policy ConflictPolicy) error {
	if _, err := os.Lstat(target); err == nil {
		if policy == SkipExisting {
			log.Debugf("skipping existing entry %s", target)
			return nil
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace %s: %w", target, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	in, err := file.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", file.Name, err)
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			log.Warnf("error closing zip entry %s: %v", file.Name, cerr)
		}
	}()

	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}

// securePath joins an archive entry name onto destDir, rejecting entries that
// would escape it.
func securePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if target != destDir && !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes destination directory", name)
	}
	return target, nil
}

func dirMode(mode os.FileMode) os.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o755
	}
	return perm
}

type topLevelSet struct {
	seen map[string]struct{}
}

func newTopLevelSet() *topLevelSet {
	return &topLevelSet{seen: map[string]struct{}{}}
}

func (s *topLevelSet) add(entryName string) {
	name := strings.TrimPrefix(entryName, "./")
	if idx := strings.IndexByte(name, '/'); idx >= 0 {
		name = name[:idx]
	}
	if name == "" || name == "." {
		return
	}
	s.seen[name] = struct{}{}
}

func (s *topLevelSet) names() []string {
	names := make([]string, 0, len(s.seen))
	for name := range s.seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
