package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// extract unpacks a zip archive into dest.
func extract(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if r == nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		// A reader returned alongside an error flags insecure entry names.
		r.Close() //nolint:errcheck,gosec // the path error takes precedence
		return fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	defer r.Close()

	root := filepath.Clean(dest) + string(os.PathSeparator)
	for _, f := range r.File {
		if err := extractFile(f, root); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, root string) error {
	target := filepath.Join(root, filepath.FromSlash(f.Name))
	if !strings.HasPrefix(target+string(os.PathSeparator), root) {
		return fmt.Errorf("%w: %s escapes the extraction directory", ErrUnsafePath, f.Name)
	}

	mode := f.FileInfo().Mode()
	switch {
	case mode.IsDir():
		return os.MkdirAll(target, 0o755) //nolint:gosec // scratch directory
	case !mode.IsRegular():
		// Symlinks and devices are never part of a job.
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil { //nolint:gosec // scratch directory
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) //nolint:gosec // target validated above
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.Name, err)
	}

	//nolint:gosec // G110: archives come from the pipeline that invokes us
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close() //nolint:errcheck,gosec // copy error takes precedence
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return dst.Close()
}
