package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/appinfo"
	"github.com/rangekit/depot/pkg/cmdhelper"
)

// NewVersionCommand returns a command with default values.
func NewVersionCommand() *VersionCommand {
	return &VersionCommand{}
}

// VersionCommand prints the client version.
type VersionCommand struct {
	Full bool
}

// ToCLI transforms to a *cli.Command.
func (c *VersionCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version",
		Flags:  c.Flags(),
		Before: cmdhelper.AsBefore(cmdhelper.NoArgs()),
		Action: c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *VersionCommand) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "full",
			Aliases:     []string{"f"},
			Usage:       "full build information",
			Destination: &c.Full,
		},
	}
}

// Run is the main function for the current command.
func (c *VersionCommand) Run(_ context.Context, cmd *cli.Command) error {
	return appinfo.WriteVersion(cmd.Writer, c.Full)
}
