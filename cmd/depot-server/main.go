// Package main is the entry of the depot registry server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rangekit/depot/pkg/registry/config"
	"github.com/rangekit/depot/pkg/registry/database"
	"github.com/rangekit/depot/pkg/registry/server"
	"github.com/rangekit/depot/pkg/storage"
	"github.com/rangekit/depot/pkg/xlog"
)

func main() {
	if err := run(); err != nil {
		xlog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configuration, err := config.Read(os.Args)
	if err != nil {
		return err
	}
	setupLogging(configuration)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := database.NewPostgres(ctx, configuration.DatabaseURL)
	if err != nil {
		return err
	}
	defer backend.Close()
	actor := database.NewActor(backend)

	store := storage.NewOS(configuration.PackageFolder)
	srv, err := server.New(actor, store, configuration.PemBlock())
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              configuration.Hostname,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		actor.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		srv.RunSweeper(groupCtx)
		return nil
	})
	group.Go(func() error {
		xlog.Info("registry listening", "address", configuration.Hostname)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func setupLogging(configuration *config.Configuration) {
	c := xlog.NewConfig()
	switch configuration.LogLevel {
	case "debug":
		c.Level = slog.LevelDebug
	case "warn":
		c.Level = slog.LevelWarn
	case "error":
		c.Level = slog.LevelError
	}
	c.Path = configuration.LogFile
	xlog.SetDefault(xlog.New(c))
}
