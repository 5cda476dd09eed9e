package cmd

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webshell-project/bootstrapper/internal/platform"
)

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "development")
}

func TestCheckCmdWithoutMetadataEndpoint(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("only linux has no metadata endpoint")
	}

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"check", "-o", t.TempDir()})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "download is recommended")
}

func TestCleanCmdOnEmptyOutputDir(t *testing.T) {
	if _, err := platform.Resolve("."); err != nil {
		t.Skipf("host platform unsupported: %v", err)
	}

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"clean", "-o", t.TempDir()})

	require.NoError(t, rootCmd.Execute())
}
