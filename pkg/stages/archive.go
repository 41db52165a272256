package stages

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PrepareSource resolves the --source argument into a directory semgrep can
// scan. Directories pass through unchanged; zip archives are extracted into
// a temp directory. The returned cleanup func is always safe to call.
func PrepareSource(path string) (dir string, cleanup func(), err error) {
	cleanup = func() {}

	info, err := os.Stat(path)
	if err != nil {
		return "", cleanup, fmt.Errorf("source path %s: %w", path, err)
	}
	if info.IsDir() {
		return path, cleanup, nil
	}
	if strings.ToLower(filepath.Ext(path)) != ".zip" {
		return "", cleanup, fmt.Errorf("source %s is neither a directory nor a zip archive", path)
	}

	tmp, err := os.MkdirTemp("", "vulnvalid-src-*")
	if err != nil {
		return "", cleanup, err
	}
	cleanup = func() { os.RemoveAll(tmp) }

	if err := extractZip(path, tmp); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to extract %s: %w", path, err)
	}
	return tmp, cleanup, nil
}

func extractZip(archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, f := range reader.File {
		target := filepath.Join(dest, f.Name)
		// Reject entries that escape the destination.
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %s escapes extraction directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
