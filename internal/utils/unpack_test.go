package utils

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "archive.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestUnzip_ExtractsNestedEntries(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"seed1":            "abcd",
		"nested/dir/seed2": "efgh",
	})
	dst := t.TempDir()
	require.NoError(t, Unzip(zipPath, dst))

	seed1, err := os.ReadFile(filepath.Join(dst, "seed1"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(seed1))

	seed2, err := os.ReadFile(filepath.Join(dst, "nested", "dir", "seed2"))
	require.NoError(t, err)
	assert.Equal(t, "efgh", string(seed2))
}

func TestUnzip_RejectsEscapingEntry(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"../escape": "nope"})
	dst := filepath.Join(t.TempDir(), "corpus")
	require.NoError(t, os.MkdirAll(dst, 0755))

	err := Unzip(zipPath, dst)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dst), "escape"))
}

func TestUnzip_MissingArchive(t *testing.T) {
	assert.Error(t, Unzip("/nonexistent/archive.zip", t.TempDir()))
}

func TestMoveFile_OverwritesDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	require.NoError(t, MoveFile(src, dst))

	moved, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(moved))
	assert.NoFileExists(t, src)
}

func TestMoveFile_MissingSource(t *testing.T) {
	assert.Error(t, MoveFile("/nonexistent/src", filepath.Join(t.TempDir(), "dst")))
}

func TestCopyFile_PreservesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0600))

	dst := filepath.Join(dir, "dst")
	require.NoError(t, CopyFile(src, dst))

	copied, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(copied))
	assert.FileExists(t, src)
}
