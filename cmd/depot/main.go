// Package main is the entry of the depot client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/commands"
	"github.com/rangekit/depot/pkg/errdefs"
)

const appName = "depot"

// Exit codes: 0 success, 1 user error, 2 system error.
const (
	exitUserError   = 1
	exitSystemError = 2
)

func main() {
	app := cli.Command{
		Name:                  appName,
		Usage:                 "Depot is a package registry client",
		Suggest:               true,
		EnableShellCompletion: true,
		HideVersion:           true,
		Commands: []*cli.Command{
			commands.NewPublishCommand().ToCLI(),
			commands.NewFetchCommand().ToCLI(),
			commands.NewChecksumCommand().ToCLI(),
			commands.NewInspectCommand().ToCLI(),
			commands.NewNormalizeVersionCommand().ToCLI(),
			commands.NewYankCommand().ToCLI(),
			commands.NewOwnerCommand().ToCLI(),
			commands.NewTokenCommand().ToCLI(),
			commands.NewLoginCommand().ToCLI(),
			commands.NewVersionCommand().ToCLI(),
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates caller mistakes from infrastructure failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrInvalidParameter),
		errors.Is(err, errdefs.ErrConflict),
		errors.Is(err, errdefs.ErrNotFound),
		errors.Is(err, errdefs.ErrUnauthorized),
		errors.Is(err, errdefs.ErrForbidden),
		errors.Is(err, errdefs.ErrAlreadyExists):
		return exitUserError
	default:
		return exitSystemError
	}
}
