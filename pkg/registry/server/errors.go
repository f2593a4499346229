package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/registry/database"
	"github.com/rangekit/depot/pkg/xlog"
)

// Stable error bodies. Validation and conflict failures carry a
// human-readable message; infrastructural failures are logged with the
// root cause and answered with a non-revealing body.
const (
	msgTokenMissing     = "Token missing"
	msgTokenInvalid     = "Keycloak validation failed"
	msgNotAuthorized    = "Not authorized"
	msgNotFound         = "Not found"
	msgFileNotFound     = "File not found"
	msgLastOwner        = "Cannot remove the last owner of a package"
	msgInternal         = "Internal server error"
	msgMetadataParse    = "Failed to parse metadata"
	msgPackageSave      = "Failed to save the package"
	msgChecksumMismatch = "Failed to validate the package: checksum mismatch"
)

// statusOf maps an error to its stable HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, database.ErrOwnerRemoveLast):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errdefs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errdefs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrInvalidParameter), errors.Is(err, errdefs.ErrUnprocessable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError answers the request according to the error taxonomy and
// stops the handler chain.
func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		xlog.C(c.Request.Context()).Error("request failed", "error", err, "path", c.FullPath())
		c.String(status, msgInternal)
	} else {
		c.String(status, userMessage(err))
	}
	c.Abort()
}

// userMessage picks the stable body for caller-visible failures.
func userMessage(err error) string {
	switch {
	case errors.Is(err, database.ErrOwnerRemoveLast):
		return msgLastOwner
	case errors.Is(err, database.ErrRecordNotFound):
		return msgNotFound
	case errors.Is(err, errdefs.ErrUnauthorized):
		return msgTokenMissing
	case errors.Is(err, errdefs.ErrForbidden):
		return msgNotAuthorized
	default:
		return err.Error()
	}
}
