package archive

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// ExtractTarBz2 expands a bzip2-compressed tar archive into destDir.
func ExtractTarBz2(src, destDir string, policy ConflictPolicy) ([]string, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, &ExtractionError{Archive: src, Err: err}
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			log.Warnf("error closing archive %s: %v", src, cerr)
		}
	}()

	tr := tar.NewReader(bzip2.NewReader(in))
	tops := newTopLevelSet()

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ExtractionError{Archive: src, Err: err}
		}

		target, err := securePath(destDir, hdr.Name)
		if err != nil {
			return nil, &ExtractionError{Archive: src, Err: err}
		}
		tops.add(hdr.Name)

		if err := writeTarEntry(tr, hdr, target, policy); err != nil {
			return nil, &ExtractionError{Archive: src, Err: err}
		}
	}

	return tops.names(), nil
}

func writeTarEntry(tr *tar.Reader, hdr *tar.Header, target string, policy ConflictPolicy) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, dirMode(hdr.FileInfo().Mode()))
	case tar.TypeSymlink:
		skip, err := removeForPolicy(target, policy)
		if err != nil || skip {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeReg:
		skip, err := removeForPolicy(target, policy)
		if err != nil || skip {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		mode := hdr.FileInfo().Mode().Perm()
		if mode == 0 {
			mode = 0o644
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
		if err != nil {
			return fmt.Errorf("create %s: %w", target, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			_ = out.Close()
			return fmt.Errorf("write %s: %w", target, err)
		}
		return out.Close()
	default:
		log.Debugf("skipping unsupported tar entry type %d: %s", hdr.Typeflag, hdr.Name)
		return nil
	}
}

// removeForPolicy clears the target path according to the conflict policy.
// A true skip means the existing file was kept and the entry must not be
// written.
func removeForPolicy(target string, policy ConflictPolicy) (bool, error) {
	if _, err := os.Lstat(target); err != nil {
		return false, nil
	}
	if policy == SkipExisting {
		log.Debugf("skipping existing entry %s", target)
		return true, nil
	}
	if err := os.Remove(target); err != nil {
		return false, fmt.Errorf("replace %s: %w", target, err)
	}
	return false, nil
}
