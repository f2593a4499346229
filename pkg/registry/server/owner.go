package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rangekit/depot/pkg/registry/model"
	"github.com/rangekit/depot/pkg/xlog"
)

// listOwners returns the owner emails of a package.
func (s *Server) listOwners(c *gin.Context) {
	name := c.Param("name")
	owners, err := s.db.ListOwners(c.Request.Context(), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	emails := make([]string, len(owners))
	for i, owner := range owners {
		emails[i] = owner.Email
	}
	c.JSON(http.StatusOK, emails)
}

// addOwner adds an owner email to a package. Owner-gated.
func (s *Server) addOwner(c *gin.Context) {
	name := c.Param("name")
	email := c.Query("email")
	if email == "" {
		c.String(http.StatusBadRequest, "email query parameter is required")
		return
	}

	owner, err := s.db.AddOwner(c.Request.Context(), name, email)
	if err != nil {
		abortWithError(c, err)
		return
	}
	xlog.C(c.Request.Context()).Info("owner added", "package", name, "email", owner.Email)
	c.JSON(http.StatusOK, owner)
}

// removeOwner soft-deletes an owner. Removing the last owner of a
// package is rejected with a conflict. Owner-gated.
func (s *Server) removeOwner(c *gin.Context) {
	name := c.Param("name")
	email := model.NormalizeEmail(c.Param("email"))

	removed, err := s.db.RemoveOwner(c.Request.Context(), name, email)
	if err != nil {
		abortWithError(c, err)
		return
	}
	xlog.C(c.Request.Context()).Info("owner removed", "package", name, "email", removed)
	c.JSON(http.StatusOK, removed)
}
