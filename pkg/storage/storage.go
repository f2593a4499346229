// Package storage persists archive bytes and extracted auxiliary files
// under a {package}/{version} layout with atomic per-file commits.
package storage

import (
	"bytes"
	"io"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"

	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/manifest"
)

const (
	packagesDir = "packages"
	tomlsDir    = "tomls"
	readmesDir  = "readmes"
	tmpDir      = "tmp"
)

// Store lays files out under a configured root:
//
//	packages/<name>/<version>   binary archive
//	tomls/<name>/<version>      manifest text
//	readmes/<name>/<version>    README text, absent when none
//	tmp/                        in-flight upload spool
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at root on the given filesystem.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// NewOS returns a Store rooted at root on the host filesystem.
func NewOS(root string) *Store {
	return New(afero.NewOsFs(), root)
}

// PackagePath returns the path of the stored archive for (name, version).
func (s *Store) PackagePath(name, version string) string {
	return path.Join(s.root, packagesDir, name, version)
}

func (s *Store) tomlPath(name, version string) string {
	return path.Join(s.root, tomlsDir, name, version)
}

func (s *Store) readmePath(name, version string) string {
	return path.Join(s.root, readmesDir, name, version)
}

// TempDir returns the spool directory for in-flight uploads, creating it
// when missing.
func (s *Store) TempDir() (string, error) {
	dir := path.Join(s.root, tmpDir)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}

// CreateTemp creates a spool file for an in-flight upload.
func (s *Store) CreateTemp(pattern string) (afero.File, error) {
	dir, err := s.TempDir()
	if err != nil {
		return nil, err
	}
	return afero.TempFile(s.fs, dir, pattern)
}

// RemoveSpool deletes an in-flight spool file left behind by a failed
// upload. Missing files are not an error.
func (s *Store) RemoveSpool(path string) {
	_ = s.fs.Remove(path)
}

// writeFileAtomic writes data to target through a sibling temporary file
// and a rename, so readers never observe a partial file.
func (s *Store) writeFileAtomic(target string, r io.Reader) error {
	dir := path.Dir(target)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := afero.TempFile(s.fs, dir, path.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(name)
		return err
	}
	return s.fs.Rename(name, target)
}

// CommitVersion lands the three files of a version. The archive is moved
// from its spool location; the manifest and README are written atomically.
// Any failure removes the files already landed for the version.
func (s *Store) CommitVersion(name, version, archiveSpoolPath string, toml, readme []byte) (err error) {
	defer func() {
		if err != nil {
			s.RemoveVersion(name, version)
		}
	}()

	target := s.PackagePath(name, version)
	if err = s.fs.MkdirAll(path.Dir(target), 0o750); err != nil {
		return err
	}
	if err = s.fs.Rename(archiveSpoolPath, target); err != nil {
		return err
	}
	if err = s.writeFileAtomic(s.tomlPath(name, version), bytes.NewReader(toml)); err != nil {
		return err
	}
	if len(readme) > 0 {
		if err = s.writeFileAtomic(s.readmePath(name, version), bytes.NewReader(readme)); err != nil {
			return err
		}
	}
	return nil
}

// RemoveVersion deletes every file stored for (name, version). Missing
// files are not an error, so a partial commit can always be rolled back.
func (s *Store) RemoveVersion(name, version string) {
	_ = s.fs.Remove(s.PackagePath(name, version))
	_ = s.fs.Remove(s.tomlPath(name, version))
	_ = s.fs.Remove(s.readmePath(name, version))
}

// OpenPackage opens the stored archive for reading and returns its size.
func (s *Store) OpenPackage(name, version string) (afero.File, int64, error) {
	if err := manifest.ValidateName(name); err != nil {
		return nil, 0, err
	}
	if err := manifest.ValidateVersion(version); err != nil {
		return nil, 0, err
	}
	target := s.PackagePath(name, version)
	info, err := s.fs.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, errdefs.Newf(errdefs.ErrNotFound, "file not found for %s %s", name, version)
		}
		return nil, 0, err
	}
	f, err := s.fs.Open(target)
	if err != nil {
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// ReadToml returns the stored manifest text for (name, version).
func (s *Store) ReadToml(name, version string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.tomlPath(name, version))
	if os.IsNotExist(err) {
		return nil, errdefs.Newf(errdefs.ErrNotFound, "file not found for %s %s", name, version)
	}
	return data, err
}

// ReadReadme returns the stored README text, or (nil, nil) when the
// version shipped without one.
func (s *Store) ReadReadme(name, version string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.readmePath(name, version))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// SweepTemp removes spool files older than maxAge relative to now. It
// returns the number of files removed.
func (s *Store) SweepTemp(now time.Time, maxAge time.Duration) (int, error) {
	dir, err := s.TempDir()
	if err != nil {
		return 0, err
	}
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if now.Sub(entry.ModTime()) < maxAge {
			continue
		}
		if err := s.fs.Remove(path.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
