// Package xos provides filesystem helpers with atomic-rename semantics.
package xos

import (
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes the content of r to path through a sibling
// temporary file. The temporary file is fsynced and renamed over the target
// so that readers never observe a partially written file.
func WriteFileAtomic(path string, r io.Reader, perm os.FileMode) (written int64, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	written, err = io.Copy(tmp, r)
	if err != nil {
		return written, err
	}
	if err = tmp.Sync(); err != nil {
		return written, err
	}
	if err = tmp.Chmod(perm); err != nil {
		return written, err
	}
	if err = tmp.Close(); err != nil {
		return written, err
	}
	return written, os.Rename(tmp.Name(), path)
}

// MoveFile renames src to dst, falling back to a copy-and-remove when the
// rename crosses filesystems.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if _, err := WriteFileAtomic(dst, in, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}

// Exists reports whether the path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
