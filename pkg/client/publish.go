package client

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rangekit/depot/pkg/archive"
	"github.com/rangekit/depot/pkg/manifest"
	"github.com/rangekit/depot/pkg/wire"
	"github.com/rangekit/depot/pkg/xlog"
)

// Publish locates the manifest at or above startDir, builds the archive,
// and streams the framed payload to the registry. The registry is asked
// for the existing versions first so an obvious conflict fails before any
// bytes are uploaded.
func (c *Client) Publish(ctx context.Context, startDir string, timeout time.Duration) error {
	tomlPath, err := manifest.FindFile(startDir)
	if err != nil {
		return err
	}
	projectRoot := filepath.Dir(tomlPath)

	m, err := manifest.ParseFile(tomlPath)
	if err != nil {
		return err
	}
	if err := c.ValidateVersion(ctx, m.Package.Name, m.Package.Version); err != nil {
		return err
	}

	built, err := archive.Build(projectRoot)
	if err != nil {
		return err
	}
	xlog.C(ctx).Debug("archive built",
		"path", built.Path, "checksum", built.Checksum, "size", built.Size)

	tomlBytes, err := os.ReadFile(tomlPath)
	if err != nil {
		return err
	}
	readmeBytes, err := readReadme(projectRoot, m.Package.Readme)
	if err != nil {
		return err
	}

	archiveFile, err := os.Open(built.Path)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	metadata := wire.Metadata{
		Name:     m.Package.Name,
		Version:  m.Package.Version,
		Checksum: built.Checksum,
		Size:     built.Size,
	}

	// frames are produced into a pipe so the request body streams
	// instead of buffering the whole archive
	pr, pw := io.Pipe()
	go func() {
		enc := wire.NewEncoder(pw)
		err := enc.WriteMetadata(metadata)
		if err == nil {
			err = enc.WriteBytes(tomlBytes)
		}
		if err == nil {
			err = enc.WriteBytes(readmeBytes)
		}
		if err == nil {
			err = enc.WriteFile(built.Size, archiveFile)
		}
		pw.CloseWithError(err)
	}()

	return c.UploadPackage(ctx, pr, timeout)
}

// readReadme loads the README referenced by the manifest, returning nil
// when the manifest references none or the file does not exist.
func readReadme(projectRoot, readmePath string) ([]byte, error) {
	if readmePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(projectRoot, readmePath))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}
