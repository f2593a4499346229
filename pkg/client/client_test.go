package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/registry/database"
	"github.com/rangekit/depot/pkg/registry/server"
	"github.com/rangekit/depot/pkg/storage"
)

const testProjectManifest = `
[package]
name = "%s"
description = "client test package"
version = "%s"
license = "MIT"
readme = "README.md"

[content]
type = "vm"

[virtual-machine]
type = "OVA"
file_path = "vm/image.ova"
`

// newTestRegistry runs the full server stack over an in-memory database
// and filesystem, and returns a client authenticated against it.
func newTestRegistry(t *testing.T) (*Client, *database.Fake) {
	t.Helper()
	fake := database.NewFake()
	store := storage.New(afero.NewMemMapFs(), "/var/lib/depot")
	srv, err := server.New(fake, store, "")
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := fake.CreateToken(context.Background(), "test", "user-1", "publisher@example.com")
	require.NoError(t, err)

	c, err := New(ts.URL, token.Token)
	require.NoError(t, err)
	return c, fake
}

func writeProject(t *testing.T, name, version string) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"package.toml": fmt.Sprintf(testProjectManifest, name, version),
		"README.md":    "# " + name,
		"vm/image.ova": "image-bytes",
		"src/tool.sh":  "echo tool",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestPublishAndFetchRoundTrip(t *testing.T) {
	c, _ := newTestRegistry(t)
	ctx := context.Background()
	root := writeProject(t, "round-trip", "0.1.0")

	require.NoError(t, c.Publish(ctx, root, time.Minute))

	saveDir := t.TempDir()
	target, err := c.Fetch(ctx, "round-trip", "*", UnpackRegular, saveDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(saveDir, "round-trip-0.1.0"), target)

	content, err := os.ReadFile(filepath.Join(target, "src", "tool.sh"))
	require.NoError(t, err)
	assert.Equal(t, "echo tool", string(content))

	// the manifest travels inside the archive
	assert.FileExists(t, filepath.Join(target, "package.toml"))
}

func TestPublishFromNestedDirectory(t *testing.T) {
	c, _ := newTestRegistry(t)
	root := writeProject(t, "nested", "0.1.0")
	nested := filepath.Join(root, "src", "deep", "deeper", "deepest")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	require.NoError(t, c.Publish(context.Background(), nested, time.Minute))
}

func TestPublishFailsFastOnConflict(t *testing.T) {
	c, _ := newTestRegistry(t)
	ctx := context.Background()
	root := writeProject(t, "conflicted", "0.1.0")

	require.NoError(t, c.Publish(ctx, root, time.Minute))

	err := c.Publish(ctx, root, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrConflict)
	assert.Contains(t, err.Error(), "0.1.0")
}

func TestPublishRequiresToken(t *testing.T) {
	c, _ := newTestRegistry(t)
	c.token = ""
	root := writeProject(t, "anon", "0.1.0")

	err := c.Publish(context.Background(), root, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrUnauthorized)
}

func TestFetchRawMatchesStoredChecksum(t *testing.T) {
	c, fake := newTestRegistry(t)
	ctx := context.Background()
	root := writeProject(t, "checksummed", "0.2.0")

	require.NoError(t, c.Publish(ctx, root, time.Minute))

	saveDir := t.TempDir()
	target, err := c.Fetch(ctx, "checksummed", "*", UnpackRaw, saveDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(saveDir, "checksummed-0.2.0.tar.gz"), target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	sum := sha256.Sum256(data)

	stored, err := fake.GetVersionByNameAndVersion(ctx, "checksummed", "0.2.0")
	require.NoError(t, err)
	assert.Equal(t, stored.Checksum, hex.EncodeToString(sum[:]))
	assert.Equal(t, stored.Size, uint64(len(data)))
}

func TestFetchUncompressed(t *testing.T) {
	c, _ := newTestRegistry(t)
	ctx := context.Background()
	root := writeProject(t, "plain-tar", "0.1.0")
	require.NoError(t, c.Publish(ctx, root, time.Minute))

	saveDir := t.TempDir()
	target, err := c.Fetch(ctx, "plain-tar", "*", UnpackUncompressed, saveDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(saveDir, "plain-tar-0.1.0.tar"), target)
	assert.FileExists(t, target)
}

func TestFetchUnknownPackage(t *testing.T) {
	c, _ := newTestRegistry(t)
	_, err := c.Fetch(context.Background(), "ghost", "*", UnpackRegular, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestValidateVersionAgainstEmptyRegistry(t *testing.T) {
	c, _ := newTestRegistry(t)
	assert.NoError(t, c.ValidateVersion(context.Background(), "brand-new", "0.1.0"))
}

func TestYankThroughClient(t *testing.T) {
	c, _ := newTestRegistry(t)
	ctx := context.Background()
	root := writeProject(t, "yankable", "1.0.0")
	require.NoError(t, c.Publish(ctx, root, time.Minute))

	require.NoError(t, c.Yank(ctx, "yankable", "1.0.0", true))
	_, err := c.GetLatestMatchingVersion(ctx, "yankable", "*")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	require.NoError(t, c.Yank(ctx, "yankable", "1.0.0", false))
	v, err := c.GetLatestMatchingVersion(ctx, "yankable", "*")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.Version)
}

func TestOwnerManagementThroughClient(t *testing.T) {
	c, _ := newTestRegistry(t)
	ctx := context.Background()
	root := writeProject(t, "owned", "1.0.0")
	require.NoError(t, c.Publish(ctx, root, time.Minute))

	require.NoError(t, c.AddOwner(ctx, "owned", "co-owner@example.com"))
	owners, err := c.ListOwners(ctx, "owned")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"publisher@example.com", "co-owner@example.com"}, owners)

	require.NoError(t, c.RemoveOwner(ctx, "owned", "co-owner@example.com"))

	err = c.RemoveOwner(ctx, "owned", "publisher@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrConflict)
	assert.Contains(t, err.Error(), "last owner")
}

func TestTokenManagementThroughClient(t *testing.T) {
	c, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := c.CreateToken(ctx, "ci")
	require.NoError(t, err)
	assert.NotEmpty(t, created.Token)

	tokens, err := c.ListTokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 2) // the bootstrap token plus the new one
}

func TestParseUnpackLevel(t *testing.T) {
	for _, valid := range []string{"raw", "uncompressed", "regular"} {
		level, err := ParseUnpackLevel(valid)
		require.NoError(t, err)
		assert.Equal(t, UnpackLevel(valid), level)
	}
	_, err := ParseUnpackLevel("turbo")
	assert.Error(t, err)
}
