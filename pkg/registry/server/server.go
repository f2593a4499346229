// Package server assembles the registry HTTP API: routing, the
// authentication chain, the upload and download pipelines, and the
// background maintenance loops.
package server

import (
	"context"
	"crypto/rsa"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/maypok86/otter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/rangekit/depot/pkg/appinfo"
	"github.com/rangekit/depot/pkg/registry/database"
	"github.com/rangekit/depot/pkg/registry/model"
	"github.com/rangekit/depot/pkg/storage"
	"github.com/rangekit/depot/pkg/xlog"
)

const (
	// sweepInterval is how often the spool directory is swept.
	sweepInterval = time.Hour
	// sweepMaxAge is how old a spool file must be before the sweep
	// removes it.
	sweepMaxAge = time.Hour
)

// Server holds the state shared by all handlers. Configuration is read
// once at boot and not changed afterwards; the token cache and the
// in-flight upload guard are the parts that change while serving.
type Server struct {
	db         database.Store
	store      *storage.Store
	publicKey  *rsa.PublicKey
	tokenCache otter.Cache[string, model.ApiToken]
	uploads    *xsync.MapOf[string, struct{}]
	metrics    *metrics
	clock      clock.Clock
	registry   *prometheus.Registry
}

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// New builds a Server over the database collaborator and the storage
// layer. pemBlock optionally carries the PEM-armored RSA public key used
// to verify signed bearer tokens; pass an empty string to rely on local
// tokens only.
func New(db database.Store, store *storage.Store, pemBlock string, opts ...Option) (*Server, error) {
	s := &Server{
		db:         db,
		store:      store,
		tokenCache: newTokenCache(),
		uploads:    xsync.NewMapOf[string, struct{}](),
		clock:      clock.New(),
		registry:   prometheus.NewRegistry(),
	}
	s.metrics = newMetrics(s.registry)
	if pemBlock != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemBlock))
		if err != nil {
			return nil, err
		}
		s.publicKey = key
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/status", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/version", func(c *gin.Context) {
		c.String(http.StatusOK, appinfo.ShortVersion())
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")

	api.GET("/package", s.getPackages)
	api.GET("/package/:name", s.getPackageVersions)
	api.GET("/package/:name/:version", s.getPackageVersion)
	api.GET("/package/:name/:version/download", s.downloadPackage)
	api.GET("/package/:name/owner", s.listOwners)

	authed := api.Group("", s.Authentication())
	authed.PUT("/package", s.uploadPackage)
	authed.GET("/token", s.listTokens)
	authed.POST("/token", s.createToken)

	owned := authed.Group("", s.OwnerGate())
	owned.PUT("/package/:name/:version/yank/:flag", s.yankPackage)
	owned.POST("/package/:name/owner", s.addOwner)
	owned.DELETE("/package/:name/owner/:email", s.removeOwner)

	return router
}

// RunSweeper periodically removes spool files abandoned by interrupted
// uploads. It blocks until the context is canceled.
func (s *Server) RunSweeper(ctx context.Context) {
	ticker := s.clock.Ticker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.SweepTemp(s.clock.Now(), sweepMaxAge)
			if err != nil {
				xlog.C(ctx).Warn("spool sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				xlog.C(ctx).Info("swept abandoned upload files", "removed", removed)
			}
		}
	}
}
