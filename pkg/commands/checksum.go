package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/cmdhelper"
	"github.com/rangekit/depot/pkg/commands/internal/options"
)

// NewChecksumCommand returns a command with default values.
func NewChecksumCommand() *ChecksumCommand {
	return &ChecksumCommand{
		Registry:           options.NewRegistry(),
		VersionRequirement: "*",
	}
}

// ChecksumCommand prints the stored checksum of the latest matching
// version.
type ChecksumCommand struct {
	Registry           *options.Registry
	VersionRequirement string
}

// ToCLI transforms to a *cli.Command.
func (c *ChecksumCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:      "checksum",
		Usage:     "Print the checksum of a package version",
		ArgsUsage: "PACKAGE_NAME",
		Flags:     c.Flags(),
		Before:    cmdhelper.AsBefore(cmdhelper.ExactArgs(1)),
		Action:    c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *ChecksumCommand) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "version-requirement",
			Aliases:     []string{"v"},
			Usage:       "version requirement of the package",
			Value:       c.VersionRequirement,
			Destination: &c.VersionRequirement,
		},
	}
	return append(flags, c.Registry.Flags()...)
}

// Run is the main function for the current command.
func (c *ChecksumCommand) Run(ctx context.Context, cmd *cli.Command) error {
	apiClient, _, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	version, err := apiClient.GetLatestMatchingVersion(ctx, cmd.Args().First(), c.VersionRequirement)
	if err != nil {
		return err
	}
	cmdhelper.Fprintf(cmd.Writer, "%s", version.Checksum)
	return nil
}
