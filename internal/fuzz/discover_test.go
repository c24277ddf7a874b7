package fuzz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeCandidate(t *testing.T, dir, name string, mode os.FileMode, withEntryPoint bool) {
	t.Helper()
	content := "#!/bin/sh\necho hello\n"
	if withEntryPoint {
		content = "#!/bin/sh\n# LLVMFuzzerTestOneInput\necho fuzzing\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), mode))
}

func TestDiscoverTargets_FiltersOnModeAndEntryPoint(t *testing.T) {
	outDir := t.TempDir()
	writeCandidate(t, outDir, "zlib_fuzzer", 0755, true)
	writeCandidate(t, outDir, "png_fuzzer", 0755, true)
	writeCandidate(t, outDir, "build_helper.sh", 0755, false) // executable, not a target
	writeCandidate(t, outDir, "notes.txt", 0644, true)        // entry point, not executable
	require.NoError(t, os.MkdirAll(filepath.Join(outDir, "corpus"), 0755))

	targets, err := DiscoverTargets(outDir, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, "png_fuzzer", targets[0].Name)
	assert.Equal(t, filepath.Join(outDir, "png_fuzzer"), targets[0].BinaryPath)
	assert.Equal(t, "zlib_fuzzer", targets[1].Name)
	assert.Equal(t, filepath.Join(outDir, "zlib_fuzzer"), targets[1].BinaryPath)
}

func TestDiscoverTargets_EmptyDir(t *testing.T) {
	targets, err := DiscoverTargets(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestDiscoverTargets_MissingDir(t *testing.T) {
	_, err := DiscoverTargets("/nonexistent/out", zap.NewNop())
	assert.Error(t, err)
}

func TestDiscoverTargets_OrderIsDeterministic(t *testing.T) {
	outDir := t.TempDir()
	for _, name := range []string{"c_fuzzer", "a_fuzzer", "b_fuzzer"} {
		writeCandidate(t, outDir, name, 0755, true)
	}

	targets, err := DiscoverTargets(outDir, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, targets, 3)
	assert.Equal(t, "a_fuzzer", targets[0].Name)
	assert.Equal(t, "b_fuzzer", targets[1].Name)
	assert.Equal(t, "c_fuzzer", targets[2].Name)
}
