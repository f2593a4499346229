// Package archive builds, compresses, and unpacks package archives. An
// archive is a gzip-compressed tar stream of a project directory with
// ignore rules applied.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"
	"github.com/opencontainers/go-digest"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/manifest"
)

const (
	// Extension is the file extension of a built package archive.
	Extension = ".package"

	// targetDir is excluded from every archive, at any depth.
	targetDir = "target"

	// multithreadThreshold selects pgzip over plain gzip for directories
	// whose payload is large enough to amortize the goroutine fan-out.
	multithreadThreshold = 32 << 20 // 32 MiB
)

// Result describes a built archive.
type Result struct {
	// Path is the location of the archive file, under
	// <root>/target/package/<name>.package.
	Path string
	// Checksum is the lowercase hex SHA-256 of the archive bytes.
	Checksum string
	// Size is the archive size in bytes.
	Size uint64
}

// Build validates the manifest at the root of dir and archives the
// directory into <dir>/target/package/<name>.package. Entries named
// "target" and entries whose name begins with "." are always excluded;
// .gitignore files found along the walk are honored.
func Build(dir string) (*Result, error) {
	m, err := manifest.ParseFile(filepath.Join(dir, manifest.Filename))
	if err != nil {
		return nil, err
	}

	destDir := filepath.Join(dir, targetDir, "package")
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, err
	}
	destPath := filepath.Join(destDir, m.Package.Name+Extension)

	out, err := os.Create(destPath)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	digester := digest.SHA256.Digester()
	counter := &countingWriter{w: io.MultiWriter(out, digester.Hash())}

	var zw io.WriteCloser
	if estimateSize(dir) >= multithreadThreshold {
		zw, err = pgzip.NewWriterLevel(counter, gzip.DefaultCompression)
	} else {
		zw, err = gzip.NewWriterLevel(counter, gzip.DefaultCompression)
	}
	if err != nil {
		return nil, err
	}

	tw := tar.NewWriter(zw)
	if err := writeTree(tw, dir); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if err := out.Sync(); err != nil {
		return nil, err
	}

	return &Result{
		Path:     destPath,
		Checksum: digester.Digest().Encoded(),
		Size:     uint64(counter.n),
	}, nil
}

// writeTree walks dir and writes every kept entry to the tar stream with
// paths relative to dir.
func writeTree(tw *tar.Writer, root string) error {
	matchers := newIgnoreStack(root)
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if excluded(entry.Name()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if matchers.Matches(rel, entry.IsDir()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			matchers.Enter(path, rel)
		}
		return writeEntry(tw, path, rel, entry)
	})
}

func writeEntry(tw *tar.Writer, path, rel string, entry fs.DirEntry) error {
	info, err := entry.Info()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)
	if entry.IsDir() {
		header.Name += "/"
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if entry.IsDir() || !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// excluded reports the unconditional exclusions: dotfiles and target
// directories at any depth.
func excluded(name string) bool {
	return name == targetDir || strings.HasPrefix(name, ".")
}

// ignoreStack accumulates .gitignore matchers found along the walk. Each
// matcher applies to paths below the directory it was found in.
type ignoreStack struct {
	entries []ignoreEntry
}

type ignoreEntry struct {
	// rel is the directory the ignore file lives in, relative to the
	// walk root. Empty for the root itself.
	rel     string
	matcher *gitignore.GitIgnore
}

func newIgnoreStack(root string) *ignoreStack {
	s := &ignoreStack{}
	s.Enter(root, "")
	return s
}

// Enter loads the .gitignore of the entered directory, if present.
func (s *ignoreStack) Enter(dir, rel string) {
	path := filepath.Join(dir, ".gitignore")
	matcher, err := gitignore.CompileIgnoreFile(path)
	if err != nil || matcher == nil {
		return
	}
	if rel == "." {
		rel = ""
	}
	s.entries = append(s.entries, ignoreEntry{rel: rel, matcher: matcher})
}

// Matches reports whether any matcher on the stack ignores the path.
func (s *ignoreStack) Matches(rel string, isDir bool) bool {
	slashed := filepath.ToSlash(rel)
	if isDir {
		slashed += "/"
	}
	for _, e := range s.entries {
		scoped := slashed
		if e.rel != "" {
			prefix := filepath.ToSlash(e.rel) + "/"
			if !strings.HasPrefix(slashed, prefix) {
				continue
			}
			scoped = strings.TrimPrefix(slashed, prefix)
		}
		if e.matcher.MatchesPath(scoped) {
			return true
		}
	}
	return false
}

// estimateSize sums regular file sizes under dir, ignoring walk errors.
// It only steers the gzip implementation choice.
func estimateSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if excluded(entry.Name()) {
			return nil
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Decompress gunzips the file at src into dst.
func Decompress(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := pgzip.NewReader(in)
	if err != nil {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "not a gzip archive: %s", err)
	}
	defer zr.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, zr); err != nil {
		return err
	}
	return out.Sync()
}

// Unpack extracts the tar file at src into the directory dst.
func Unpack(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tr := tar.NewReader(in)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := extractEntry(tr, header, dst); err != nil {
			return err
		}
	}
}

func extractEntry(tr *tar.Reader, header *tar.Header, dst string) error {
	name := filepath.FromSlash(header.Name)
	if strings.Contains(name, "..") {
		return fmt.Errorf("archive entry %q escapes the destination", header.Name)
	}
	path := filepath.Join(dst, name)

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(path, fs.FileMode(header.Mode)|0o700)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fs.FileMode(header.Mode))
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	default:
		// symlinks and specials are not expected inside package archives
		return nil
	}
}
