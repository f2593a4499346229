package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rangekit/depot/pkg/archive"
	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/util/xos"
)

// UnpackLevel selects how far a fetched archive is unpacked.
type UnpackLevel string

// Supported unpack levels.
const (
	// UnpackRaw leaves the compressed archive as downloaded.
	UnpackRaw UnpackLevel = "raw"
	// UnpackUncompressed gunzips the archive but keeps the tar.
	UnpackUncompressed UnpackLevel = "uncompressed"
	// UnpackRegular gunzips and untars into a directory.
	UnpackRegular UnpackLevel = "regular"
)

// ParseUnpackLevel validates an unpack level flag value.
func ParseUnpackLevel(s string) (UnpackLevel, error) {
	switch UnpackLevel(s) {
	case UnpackRaw, UnpackUncompressed, UnpackRegular:
		return UnpackLevel(s), nil
	}
	return "", errdefs.Newf(errdefs.ErrInvalidParameter,
		"unknown unpack level %q, expected raw, uncompressed, or regular", s)
}

// TargetName returns the destination name for a fetched package at the
// given unpack level.
func (l UnpackLevel) TargetName(name, version string) string {
	switch l {
	case UnpackRaw:
		return fmt.Sprintf("%s-%s.tar.gz", name, version)
	case UnpackUncompressed:
		return fmt.Sprintf("%s-%s.tar", name, version)
	default:
		return fmt.Sprintf("%s-%s", name, version)
	}
}

// Fetch resolves the version requirement, downloads the archive, unpacks
// it to the requested level, and atomically moves the result under
// savePath. It returns the final path.
func (c *Client) Fetch(ctx context.Context, name, requirement string, level UnpackLevel, savePath string) (string, error) {
	version, err := c.GetLatestMatchingVersion(ctx, name, requirement)
	if err != nil {
		return "", err
	}

	workDir, err := os.MkdirTemp("", "depot-package-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	downloaded := filepath.Join(workDir, version.Version)
	if err := c.DownloadPackage(ctx, name, version.Version, downloaded); err != nil {
		return "", err
	}

	unpacked, err := unpack(downloaded, level)
	if err != nil {
		return "", err
	}

	target := filepath.Join(savePath, level.TargetName(name, version.Version))
	if err := os.MkdirAll(savePath, 0o750); err != nil {
		return "", err
	}
	if level == UnpackRegular {
		// directories cannot be renamed over an existing one
		if err := os.RemoveAll(target); err != nil {
			return "", err
		}
		if err := os.Rename(unpacked, target); err != nil {
			return "", err
		}
		return target, nil
	}
	if err := xos.MoveFile(unpacked, target); err != nil {
		return "", err
	}
	return target, nil
}

func unpack(downloaded string, level UnpackLevel) (string, error) {
	switch level {
	case UnpackRaw:
		return downloaded, nil
	case UnpackUncompressed:
		tarPath := downloaded + ".tar"
		if err := archive.Decompress(downloaded, tarPath); err != nil {
			return "", err
		}
		return tarPath, nil
	default:
		tarPath := downloaded + ".tar"
		if err := archive.Decompress(downloaded, tarPath); err != nil {
			return "", err
		}
		dirPath := downloaded + "-dir"
		if err := archive.Unpack(tarPath, dirPath); err != nil {
			return "", err
		}
		return dirPath, nil
	}
}
