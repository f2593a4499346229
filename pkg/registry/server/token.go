package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rangekit/depot/pkg/registry/model"
)

// createTokenRequest is the body of POST /token.
type createTokenRequest struct {
	Name string `json:"name" binding:"required"`
}

// createToken mints a new API token for the authenticated user. The
// secret appears in this response and nowhere else.
func (s *Server) createToken(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		c.String(http.StatusUnauthorized, msgTokenMissing)
		return
	}

	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "token name is required")
		return
	}

	token, err := s.db.CreateToken(c.Request.Context(), req.Name, identity.ID, identity.Email)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.TokenCreated{ID: token.ID, Name: token.Name, Token: token.Token})
}

// listTokens returns the authenticated user's tokens without their
// secrets.
func (s *Server) listTokens(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		c.String(http.StatusUnauthorized, msgTokenMissing)
		return
	}

	tokens, err := s.db.ListTokensByUser(c.Request.Context(), identity.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if tokens == nil {
		tokens = []model.ApiToken{}
	}
	c.JSON(http.StatusOK, tokens)
}
