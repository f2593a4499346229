package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/cast"
	"github.com/yuin/goldmark"

	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/manifest"
	"github.com/rangekit/depot/pkg/registry/database"
	"github.com/rangekit/depot/pkg/registry/model"
	"github.com/rangekit/depot/pkg/util/xio"
	"github.com/rangekit/depot/pkg/versioning"
	"github.com/rangekit/depot/pkg/wire"
	"github.com/rangekit/depot/pkg/xlog"
)

// uploadPackage is the streaming ingest pipeline. The body is processed
// frame by frame; any failure after the first read drains the remainder
// of the body so the connection finishes cleanly.
func (s *Server) uploadPackage(c *gin.Context) {
	ctx := c.Request.Context()
	log := xlog.C(ctx)
	body := c.Request.Body
	dec := wire.NewDecoder(body)

	s.metrics.uploadsInFlight.Inc()
	defer s.metrics.uploadsInFlight.Dec()

	fail := func(status int, message string) {
		_ = xio.Drain(body)
		s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
		c.String(status, message)
	}

	// 1. metadata frame
	metadata, err := dec.NextMetadata()
	if err != nil {
		log.Warn("failed to parse package metadata", "error", err)
		fail(http.StatusBadRequest, msgMetadataParse)
		return
	}
	if err := metadata.Validate(); err != nil {
		log.Warn("invalid package metadata", "error", err)
		fail(http.StatusBadRequest, err.Error())
		return
	}
	log = log.With("package", metadata.Name, "version", metadata.Version)

	// only one upload per (name, version) streams at a time; the loser
	// of the race is told to conflict immediately
	guardKey := metadata.Name + "/" + metadata.Version
	if _, inFlight := s.uploads.LoadOrStore(guardKey, struct{}{}); inFlight {
		fail(http.StatusConflict, versionConflictBody(metadata.Version))
		return
	}
	defer s.uploads.Delete(guardKey)

	// 2. opportunistic version gate against the latest known version
	existing, err := s.db.GetVersionsByPackageName(ctx, metadata.Name)
	if err != nil {
		log.Error("failed to list versions", "error", err)
		fail(http.StatusInternalServerError, msgInternal)
		return
	}
	conflict, err := versioning.IsStrictlyGreater(metadata.Version, versionStrings(existing))
	if err != nil {
		log.Warn("failed to validate versioning", "error", err)
		fail(http.StatusBadRequest, "Failed to parse version value")
		return
	}
	if conflict != "" {
		fail(http.StatusConflict, versionConflictBody(conflict))
		return
	}

	// 3. manifest frame
	tomlLength, err := dec.NextUint64()
	if err != nil {
		fail(http.StatusBadRequest, msgMetadataParse)
		return
	}
	tomlBytes, err := dec.NextFileBytes(tomlLength)
	if err != nil {
		fail(http.StatusBadRequest, msgMetadataParse)
		return
	}
	parsed, err := manifest.Parse(tomlBytes)
	if err != nil {
		log.Warn("failed to validate the package manifest", "error", err)
		fail(http.StatusBadRequest, err.Error())
		return
	}

	// 4. optional README frame
	readmeLength, err := dec.NextUint64()
	if err != nil {
		fail(http.StatusBadRequest, msgMetadataParse)
		return
	}
	var readmeBytes []byte
	if readmeLength > 0 {
		readmeBytes, err = dec.NextFileBytes(readmeLength)
		if err != nil {
			fail(http.StatusBadRequest, msgMetadataParse)
			return
		}
	}

	// 5. archive frame, streamed to the spool while hashing
	archiveLength, err := dec.NextUint64()
	if err != nil {
		fail(http.StatusBadRequest, msgMetadataParse)
		return
	}
	spool, err := s.store.CreateTemp("upload-*.package")
	if err != nil {
		log.Error("failed to open spool file", "error", err)
		fail(http.StatusInternalServerError, msgInternal)
		return
	}
	spoolPath := spool.Name()
	discardSpool := func() { s.store.RemoveSpool(spoolPath) }

	digester := digest.SHA256.Digester()
	counter := &countingWriter{}
	streamErr := dec.StreamFile(archiveLength, io.MultiWriter(spool, digester.Hash(), counter))
	written := counter.n
	closeErr := spool.Close()
	if streamErr != nil || closeErr != nil {
		discardSpool()
		log.Warn("failed to spool archive", "error", errors.Join(streamErr, closeErr))
		fail(http.StatusBadRequest, "Failed to save the file")
		return
	}

	// 6. checksum gate
	if digester.Digest().Encoded() != metadata.Checksum {
		discardSpool()
		log.Warn("archive checksum mismatch", "declared", metadata.Checksum)
		fail(http.StatusBadRequest, msgChecksumMismatch)
		return
	}

	// 7. land the three files
	if err := s.store.CommitVersion(metadata.Name, metadata.Version, spoolPath, tomlBytes, readmeBytes); err != nil {
		discardSpool()
		log.Error("failed to commit package files", "error", err)
		fail(http.StatusInternalServerError, msgPackageSave)
		return
	}

	// 8. record the version row; a loss against a concurrent commit
	// rolls the files back
	newVersion := model.NewVersion{
		Version:    metadata.Version,
		License:    parsed.Package.License,
		ReadmeHTML: renderMarkdown(readmeBytes),
		Checksum:   metadata.Checksum,
		Size:       written,
	}
	if _, err := s.db.CreateVersion(ctx, metadata.Name, newVersion, uploaderEmail(c)); err != nil {
		s.store.RemoveVersion(metadata.Name, metadata.Version)
		if errors.Is(err, database.ErrVersionConflict) {
			fail(http.StatusConflict, versionConflictBody(metadata.Version))
			return
		}
		log.Error("failed to record version", "error", err)
		fail(http.StatusInternalServerError, msgInternal)
		return
	}

	s.metrics.uploadsTotal.WithLabelValues("accepted").Inc()
	s.metrics.uploadBytes.Add(float64(written))
	log.Info("package version stored", "bytes", written)
	c.String(http.StatusOK, "OK")
}

// countingWriter tracks how many archive bytes actually streamed in.
type countingWriter struct {
	n uint64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += uint64(len(p))
	return len(p), nil
}

func versionConflictBody(existing string) string {
	return fmt.Sprintf("Package version on the server is either same or later: %s", existing)
}

func versionStrings(versions []model.Version) []string {
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.Version
	}
	return out
}

func uploaderEmail(c *gin.Context) string {
	identity, _ := IdentityFrom(c)
	return identity.Email
}

// renderMarkdown converts README markdown to stored HTML. An empty input
// renders to an empty string.
func renderMarkdown(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		// fall back to the raw text rather than reject the upload
		return string(src)
	}
	return buf.String()
}

// downloadPackage streams a stored archive.
func (s *Server) downloadPackage(c *gin.Context) {
	name := c.Param("name")
	version := c.Param("version")

	f, size, err := s.store.OpenPackage(name, version)
	if err != nil {
		s.metrics.downloadsTotal.WithLabelValues("missed").Inc()
		if errors.Is(err, errdefs.ErrNotFound) {
			c.String(http.StatusNotFound, msgFileNotFound)
			return
		}
		abortWithError(c, err)
		return
	}
	defer f.Close()

	s.metrics.downloadsTotal.WithLabelValues("served").Inc()
	c.DataFromReader(http.StatusOK, size, "application/octet-stream", f, nil)
}

// getPackages lists packages with their visible versions, paginated.
func (s *Server) getPackages(c *gin.Context) {
	page := cast.ToInt64(c.DefaultQuery("page", "1"))
	perPage := cast.ToInt64(c.DefaultQuery("per_page", "20"))

	packages, totalPages, err := s.db.GetPackages(c.Request.Context(), page, perPage)
	if err != nil {
		abortWithError(c, err)
		return
	}
	visible := model.RemoveYankedVersions(packages)
	if visible == nil {
		visible = []model.PackageWithVersions{}
	}
	c.JSON(http.StatusOK, model.PackagesPage{Packages: visible, TotalPages: totalPages})
}

// getPackageVersions answers both shapes of the package query: with a
// version_requirement parameter it returns the single latest matching
// non-yanked version, otherwise the list of all non-yanked versions.
func (s *Server) getPackageVersions(c *gin.Context) {
	name := c.Param("name")
	if err := manifest.ValidateName(name); err != nil {
		abortWithError(c, err)
		return
	}

	versions, err := s.db.GetVersionsByPackageName(c.Request.Context(), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	visible := make([]model.Version, 0, len(versions))
	for _, v := range versions {
		if !v.IsYanked {
			visible = append(visible, v)
		}
	}

	requirement := c.Query("version_requirement")
	if requirement == "" {
		if len(versions) == 0 {
			c.String(http.StatusNotFound, msgNotFound)
			return
		}
		c.JSON(http.StatusOK, visible)
		return
	}

	matched, ok, err := versioning.MatchRequirement(versionStrings(visible), requirement)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !ok {
		c.String(http.StatusNotFound, msgNotFound)
		return
	}
	for _, v := range visible {
		if v.Version == matched {
			c.JSON(http.StatusOK, v)
			return
		}
	}
	c.String(http.StatusNotFound, msgNotFound)
}

// getPackageVersion returns one version row.
func (s *Server) getPackageVersion(c *gin.Context) {
	name := c.Param("name")
	version := c.Param("version")
	if err := manifest.ValidateName(name); err != nil {
		abortWithError(c, err)
		return
	}
	if err := manifest.ValidateVersion(version); err != nil {
		abortWithError(c, err)
		return
	}

	v, err := s.db.GetVersionByNameAndVersion(c.Request.Context(), name, version)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// yankPackage toggles the yanked flag of a version. Owner-gated.
func (s *Server) yankPackage(c *gin.Context) {
	name := c.Param("name")
	version := c.Param("version")
	flag := c.Param("flag")
	if flag != "true" && flag != "false" {
		c.String(http.StatusBadRequest, "yank flag must be true or false")
		return
	}
	if err := manifest.ValidateVersion(version); err != nil {
		abortWithError(c, err)
		return
	}

	v, err := s.db.SetYank(c.Request.Context(), name, version, flag == "true")
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

