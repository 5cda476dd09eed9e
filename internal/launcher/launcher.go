package launcher

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"howett.net/plist"

	"github.com/webshell-project/bootstrapper/internal/platform"
)

//go:embed stubs/webshell.bat stubs/webshell.sh
var stubs embed.FS

const (
	// StubNameWindows is the launcher written on Windows.
	StubNameWindows = "webshell.bat"
	// StubNamePosix is the launcher written on Linux and macOS.
	StubNamePosix = "webshell"

	manifestExecutableKey = "CFBundleExecutable"
)

// Install writes the platform launcher stub into the install tree's
// executable directory and, on macOS, points the bundle manifest at it.
func Install(profile platform.Profile) error {
	stubPath, err := writeStub(profile)
	if err != nil {
		return err
	}
	log.Debugf("installed launcher stub %s", stubPath)

	if profile.OS == platform.MacOS {
		manifestPath := filepath.Join(profile.InstallRoot, "Contents", "Info.plist")
		if err := patchBundleManifest(manifestPath, StubNamePosix); err != nil {
			return err
		}
	}
	return nil
}

func writeStub(profile platform.Profile) (string, error) {
	source := "stubs/webshell.sh"
	name := StubNamePosix
	if profile.OS == platform.Windows {
		source = "stubs/webshell.bat"
		name = StubNameWindows
	}

	data, err := stubs.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("read embedded stub %s: %w", source, err)
	}

	if err := os.MkdirAll(profile.Executables, 0o755); err != nil {
		return "", fmt.Errorf("create executable directory %s: %w", profile.Executables, err)
	}

	dest := filepath.Join(profile.Executables, name)
	if err := os.WriteFile(dest, data, 0o755); err != nil {
		return "", fmt.Errorf("write launcher stub %s: %w", dest, err)
	}
	return dest, nil
}

// patchBundleManifest rewrites the executable-name key of an existing bundle
// manifest, leaving every other key untouched.
func patchBundleManifest(manifestPath, executable string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read bundle manifest %s: %w", manifestPath, err)
	}

	var manifest map[string]interface{}
	if _, err := plist.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse bundle manifest %s: %w", manifestPath, err)
	}

	manifest[manifestExecutableKey] = executable

	var buf bytes.Buffer
	encoder := plist.NewEncoderForFormat(&buf, plist.XMLFormat)
	encoder.Indent("\t")
	if err := encoder.Encode(manifest); err != nil {
		return fmt.Errorf("encode bundle manifest: %w", err)
	}

	if err := os.WriteFile(manifestPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write bundle manifest %s: %w", manifestPath, err)
	}
	return nil
}
