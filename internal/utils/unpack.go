package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Unzip extracts a zip archive into dstFolder. Entry paths are confined to
// the destination; entries that would escape it are rejected.
func Unzip(zipFile, dstFolder string) error {
	reader, err := zip.OpenReader(zipFile)
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if err := extractZipEntry(entry, dstFolder); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(entry *zip.File, dstFolder string) error {
	dstPath := filepath.Join(dstFolder, entry.Name)
	if !strings.HasPrefix(dstPath, filepath.Clean(dstFolder)+string(os.PathSeparator)) {
		return fmt.Errorf("zip entry escapes destination: %s", entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(dstPath, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create entry directory: %w", err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entry.Mode())
	if err != nil {
		return fmt.Errorf("create extracted file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("extract zip entry %s: %w", entry.Name, err)
	}
	return nil
}
