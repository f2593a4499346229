package server

import (
	"crypto/rsa"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/maypok86/otter"

	"github.com/rangekit/depot/pkg/registry/model"
	"github.com/rangekit/depot/pkg/xlog"
)

// identityKey is the request-scoped slot the authenticated identity is
// stored under.
const identityKey = "depot.identity"

// Identity is the resolved requester identity.
type Identity struct {
	ID    string
	Name  string
	Email string
}

// IdentityFrom retrieves the identity placed by the authentication
// middleware.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	identity, ok := v.(Identity)
	return identity, ok
}

// claims is the subset of the signed token payload the registry uses.
type claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// newTokenCache builds the bearer-string to identity cache used by the
// local-token strategy. Entries expire quickly so revoked tokens stop
// working within a minute.
func newTokenCache() otter.Cache[string, model.ApiToken] {
	cache, err := otter.MustBuilder[string, model.ApiToken](10_000).
		WithTTL(time.Minute).
		Build()
	if err != nil {
		panic(err)
	}
	return cache
}

// Authentication resolves the bearer token to a request identity. Two
// strategies are tried in order: a signed token verified against the
// configured public key, then a lookup of the raw string in the token
// table. Requests without an Authorization header fail with 401.
func (s *Server) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.String(http.StatusUnauthorized, msgTokenMissing)
			c.Abort()
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))

		if s.publicKey != nil && looksLikeJWT(tokenString) {
			identity, err := verifySignedToken(tokenString, s.publicKey)
			if err != nil {
				xlog.C(c.Request.Context()).Warn("signed token rejected", "error", err)
				c.String(http.StatusUnauthorized, msgTokenInvalid)
				c.Abort()
				return
			}
			c.Set(identityKey, identity)
			c.Next()
			return
		}

		identity, ok := s.resolveLocalToken(c, tokenString)
		if !ok {
			c.String(http.StatusUnauthorized, msgTokenMissing)
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func (s *Server) resolveLocalToken(c *gin.Context, tokenString string) (Identity, bool) {
	token, hit := s.tokenCache.Get(tokenString)
	if !hit {
		found, err := s.db.GetTokenByString(c.Request.Context(), tokenString)
		if err != nil {
			xlog.C(c.Request.Context()).Error("token lookup failed", "error", err)
			return Identity{}, false
		}
		if found == nil {
			return Identity{}, false
		}
		token = *found
		s.tokenCache.Set(tokenString, token)
	}
	return Identity{ID: token.UserID, Email: token.Email}, true
}

// looksLikeJWT reports whether the bearer string has the three-part
// compact serialization of a signed token. Anything else is treated as a
// local token.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

func verifySignedToken(tokenString string, key *rsa.PublicKey) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return Identity{}, err
	}
	payload, ok := parsed.Claims.(*claims)
	if !ok {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	return Identity{
		ID:    payload.Subject,
		Name:  payload.Name,
		Email: model.NormalizeEmail(payload.Email),
	}, nil
}

// OwnerGate asserts that the authenticated requester appears in the
// package's owner list. It must run after Authentication.
func (s *Server) OwnerGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.String(http.StatusUnauthorized, msgTokenMissing)
			c.Abort()
			return
		}
		name := c.Param("name")
		owners, err := s.db.ListOwners(c.Request.Context(), name)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !model.ContainsEmail(owners, identity.Email) {
			c.String(http.StatusForbidden, msgNotAuthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
