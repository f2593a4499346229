package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangekit/depot/pkg/registry/database"
	"github.com/rangekit/depot/pkg/registry/model"
	"github.com/rangekit/depot/pkg/storage"
	"github.com/rangekit/depot/pkg/wire"
)

const testManifest = `
[package]
name = "%s"
description = "test package"
version = "%s"
license = "MIT"
readme = "README.md"

[content]
type = "vm"

[virtual-machine]
type = "OVA"
file_path = "vm/image.ova"
`

type testEnv struct {
	server  *Server
	handler http.Handler
	fake    *database.Fake
	store   *storage.Store
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := database.NewFake()
	store := storage.New(afero.NewMemMapFs(), "/var/lib/depot")
	srv, err := New(fake, store, "")
	require.NoError(t, err)

	created, err := fake.CreateToken(context.Background(), "test", "user-1", "uploader@example.com")
	require.NoError(t, err)

	return &testEnv{
		server:  srv,
		handler: srv.Handler(),
		fake:    fake,
		store:   store,
		token:   created.Token,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+e.token)
	return req
}

func uploadBody(t *testing.T, name, version string, manifestDoc string, readme, archive []byte) *bytes.Buffer {
	t.Helper()
	sum := sha256.Sum256(archive)
	buf := &bytes.Buffer{}
	enc := wire.NewEncoder(buf)
	require.NoError(t, enc.WriteMetadata(wire.Metadata{
		Name:     name,
		Version:  version,
		Checksum: hex.EncodeToString(sum[:]),
		Size:     uint64(len(archive)),
	}))
	require.NoError(t, enc.WriteBytes([]byte(manifestDoc)))
	require.NoError(t, enc.WriteBytes(readme))
	require.NoError(t, enc.WriteFile(uint64(len(archive)), bytes.NewReader(archive)))
	return buf
}

func (e *testEnv) upload(t *testing.T, name, version string, readme, archive []byte) *httptest.ResponseRecorder {
	t.Helper()
	doc := fmt.Sprintf(testManifest, name, version)
	body := uploadBody(t, name, version, doc, readme, archive)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/package", body)
	return e.do(e.authed(req))
}

func TestStatusAndVersion(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = e.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	archive := bytes.Repeat([]byte{0x1f, 0x8b, 0x42}, 2048)

	rec := e.upload(t, "some-package-name", "0.1.0", []byte("# readme"), archive)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/package/some-package-name/0.1.0/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))

	got := sha256.Sum256(rec.Body.Bytes())
	want := sha256.Sum256(archive)
	assert.Equal(t, want, got)
}

func TestUploadRecordsVersionRow(t *testing.T) {
	e := newTestEnv(t)
	archive := []byte("archive-bytes")

	rec := e.upload(t, "pkg", "0.1.0", []byte("# title"), archive)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	v, err := e.fake.GetVersionByNameAndVersion(context.Background(), "pkg", "0.1.0")
	require.NoError(t, err)
	assert.Equal(t, "MIT", v.License)
	assert.Equal(t, uint64(len(archive)), v.Size)
	assert.Contains(t, v.ReadmeHTML, "<h1")

	// the uploader became the initial owner
	owners, err := e.fake.ListOwners(context.Background(), "pkg")
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "uploader@example.com", owners[0].Email)
}

func TestUploadWithoutReadme(t *testing.T) {
	e := newTestEnv(t)

	rec := e.upload(t, "pkg", "0.1.0", nil, []byte("archive"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	readme, err := e.store.ReadReadme("pkg", "0.1.0")
	require.NoError(t, err)
	assert.Nil(t, readme)

	v, err := e.fake.GetVersionByNameAndVersion(context.Background(), "pkg", "0.1.0")
	require.NoError(t, err)
	assert.Empty(t, v.ReadmeHTML)
}

func TestUploadVersionConflict(t *testing.T) {
	e := newTestEnv(t)

	rec := e.upload(t, "x", "1.0.0", nil, []byte("first"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.upload(t, "x", "1.0.0", nil, []byte("second"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.0.0")
}

func TestUploadOlderVersionConflicts(t *testing.T) {
	e := newTestEnv(t)

	rec := e.upload(t, "x", "2.0.0", nil, []byte("first"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.upload(t, "x", "1.0.0", nil, []byte("older"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "2.0.0")
}

func TestUploadChecksumMismatch(t *testing.T) {
	e := newTestEnv(t)
	archive := []byte("archive")
	doc := fmt.Sprintf(testManifest, "pkg", "0.1.0")

	buf := &bytes.Buffer{}
	enc := wire.NewEncoder(buf)
	require.NoError(t, enc.WriteMetadata(wire.Metadata{
		Name:     "pkg",
		Version:  "0.1.0",
		Checksum: "aa30b1cc05c10ac8a1f309e3de09de484c6de1dc7c226e2cf8e1a518369b1d73",
		Size:     uint64(len(archive)),
	}))
	require.NoError(t, enc.WriteBytes([]byte(doc)))
	require.NoError(t, enc.WriteBytes(nil))
	require.NoError(t, enc.WriteFile(uint64(len(archive)), bytes.NewReader(archive)))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/package", buf)
	rec := e.do(e.authed(req))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "checksum")

	// nothing landed
	_, _, err := e.store.OpenPackage("pkg", "0.1.0")
	assert.Error(t, err)
}

func TestUploadInvalidManifest(t *testing.T) {
	e := newTestEnv(t)
	archive := []byte("archive")
	doc := `
[package]
name = "pkg"
description = "d"
version = "0.1.0"
license = "MIT"
readme = "README.md"

[content]
type = "feature"

[feature]
type = "service"
`
	body := uploadBody(t, "pkg", "0.1.0", doc, nil, archive)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/package", body)
	rec := e.do(e.authed(req))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Assets are required")
}

func TestUploadGarbageMetadata(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/package", bytes.NewReader([]byte("garbage")))
	rec := e.do(e.authed(req))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadUnauthenticated(t *testing.T) {
	e := newTestEnv(t)
	body := uploadBody(t, "pkg", "0.1.0", fmt.Sprintf(testManifest, "pkg", "0.1.0"), nil, []byte("a"))
	rec := e.do(httptest.NewRequest(http.MethodPut, "/api/v1/package", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Token missing")
}

func TestConcurrentIdenticalUploads(t *testing.T) {
	e := newTestEnv(t)
	archive := bytes.Repeat([]byte{0xaa}, 256*1024)

	const workers = 4
	codes := make(chan int, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := e.upload(t, "race", "1.0.0", nil, archive)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	accepted, conflicted := 0, 0
	for code := range codes {
		switch code {
		case http.StatusOK:
			accepted++
		case http.StatusConflict:
			conflicted++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, workers-1, conflicted)

	// the stored archive matches the winner's checksum
	f, _, err := e.store.OpenPackage("race", "1.0.0")
	require.NoError(t, err)
	f.Close()
}

func TestDownloadMissing(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/package/ghost/1.0.0/download", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "File not found")
}

func TestGetPackageVersionsList(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.1.0", nil, []byte("b")).Code)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/package/x", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var versions []model.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	assert.Len(t, versions, 2)
}

func TestYankAwareRequirementQuery(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.1.0", nil, []byte("b")).Code)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/package/x/1.1.0/yank/true", nil)
	rec := e.do(e.authed(req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/package/x?version_requirement=*", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var v model.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "1.0.0", v.Version)
}

func TestAllVersionsYankedIs404(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/package/x/1.0.0/yank/true", nil)
	require.Equal(t, http.StatusOK, e.do(e.authed(req)).Code)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/package/x?version_requirement=*", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestYankedVersionStillGatesUploads(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/package/x/1.0.0/yank/true", nil)
	require.Equal(t, http.StatusOK, e.do(e.authed(req)).Code)

	// a yanked version number may never be replayed
	rec := e.upload(t, "x", "1.0.0", nil, []byte("replay"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnauthenticatedYank(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)

	rec := e.do(httptest.NewRequest(http.MethodPut, "/api/v1/package/x/1.0.0/yank/true", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestYankByNonOwnerForbidden(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)

	stranger, err := e.fake.CreateToken(context.Background(), "other", "user-2", "stranger@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/package/x/1.0.0/yank/true", nil)
	req.Header.Set("Authorization", "Bearer "+stranger.Token)
	rec := e.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not authorized")
}

func TestOwnerRoutes(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/package/x/owner?email=second@example.com", nil)
	rec := e.do(e.authed(req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/package/x/owner", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var emails []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &emails))
	assert.ElementsMatch(t, []string{"uploader@example.com", "second@example.com"}, emails)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/package/x/owner/second@example.com", nil)
	rec = e.do(e.authed(req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLastOwnerRemovalRejected(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/package/x/owner/uploader@example.com", nil)
	rec := e.do(e.authed(req))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "last owner")
}

func TestGetPackagesPagination(t *testing.T) {
	e := newTestEnv(t)
	for _, name := range []string{"alpha", "bravo", "charlie"} {
		require.Equal(t, http.StatusOK, e.upload(t, name, "1.0.0", nil, []byte(name)).Code)
	}

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/package?page=1&per_page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page model.PackagesPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(2), page.TotalPages)
	assert.Len(t, page.Packages, 2)
}

func TestGetPackageVersionInfo(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/package/x/1.0.0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var v model.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "1.0.0", v.Version)
	assert.Len(t, v.Checksum, 64)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/package/x/9.9.9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTokenRoutes(t *testing.T) {
	e := newTestEnv(t)

	body := bytes.NewReader([]byte(`{"name":"ci-token"}`))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", body)
	rec := e.do(e.authed(req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created model.TokenCreated
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ci-token", created.Name)
	assert.NotEmpty(t, created.Token)

	rec = e.do(e.authed(httptest.NewRequest(http.MethodGet, "/api/v1/token", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []model.ApiToken
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	// the bootstrap token plus the new one
	require.Len(t, listed, 2)
	// secrets never appear in listings
	assert.NotContains(t, rec.Body.String(), created.Token)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/token", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignedTokenAuthentication(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBlock := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	fake := database.NewFake()
	store := storage.New(afero.NewMemMapFs(), "/var/lib/depot")
	srv, err := New(fake, store, pemBlock)
	require.NoError(t, err)
	handler := srv.Handler()

	claims := jwt.MapClaims{
		"sub":   "keycloak-user",
		"email": "Signed@Example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	body := bytes.NewReader([]byte(`{"name":"jwt-token"}`))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", body)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tokens, err := fake.ListTokensByUser(context.Background(), "keycloak-user")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "signed@example.com", tokens[0].Email)
}

func TestSignedTokenBadSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBlock := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	srv, err := New(database.NewFake(), storage.New(afero.NewMemMapFs(), "/depot"), pemBlock)
	require.NoError(t, err)
	handler := srv.Handler()

	claims := jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(otherKey)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/token", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Keycloak validation failed")
}

func TestSweeperRemovesStaleSpoolFiles(t *testing.T) {
	fake := database.NewFake()
	fs := afero.NewMemMapFs()
	store := storage.New(fs, "/var/lib/depot")
	mock := clock.NewMock()
	srv, err := New(fake, store, "", WithClock(mock))
	require.NoError(t, err)

	spool, err := store.CreateTemp("upload-*")
	require.NoError(t, err)
	require.NoError(t, spool.Close())
	stale := mock.Now().Add(-2 * time.Hour)
	require.NoError(t, fs.Chtimes(spool.Name(), stale, stale))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		srv.RunSweeper(ctx)
		close(done)
	}()

	// give the sweeper goroutine a beat to arm its ticker
	time.Sleep(10 * time.Millisecond)
	mock.Add(sweepInterval + time.Minute)
	assert.Eventually(t, func() bool {
		_, err := fs.Stat(spool.Name())
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestDrainOnFailure(t *testing.T) {
	e := newTestEnv(t)

	// a payload whose metadata is valid but whose version conflicts,
	// followed by a large remainder: the handler must consume it all
	require.Equal(t, http.StatusOK, e.upload(t, "x", "1.0.0", nil, []byte("a")).Code)

	doc := fmt.Sprintf(testManifest, "x", "1.0.0")
	trailer := bytes.Repeat([]byte{0xff}, 1<<20)
	body := uploadBody(t, "x", "1.0.0", doc, nil, trailer)
	total := body.Len()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/package", body)
	rec := e.do(e.authed(req))
	assert.Equal(t, http.StatusConflict, rec.Code)
	// the whole body was drained despite the early rejection
	assert.Zero(t, body.Len(), "expected full drain of %d bytes", total)
}
