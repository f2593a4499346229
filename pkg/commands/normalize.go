package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/cmdhelper"
	"github.com/rangekit/depot/pkg/commands/internal/options"
)

// NewNormalizeVersionCommand returns a command with default values.
func NewNormalizeVersionCommand() *NormalizeVersionCommand {
	return &NormalizeVersionCommand{
		Registry:           options.NewRegistry(),
		VersionRequirement: "*",
	}
}

// NormalizeVersionCommand resolves a version requirement to the concrete
// version the registry would serve.
type NormalizeVersionCommand struct {
	Registry           *options.Registry
	VersionRequirement string
}

// ToCLI transforms to a *cli.Command.
func (c *NormalizeVersionCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:      "normalize-version",
		Usage:     "Resolve a version requirement to a concrete version",
		ArgsUsage: "PACKAGE_NAME",
		Flags:     c.Flags(),
		Before:    cmdhelper.AsBefore(cmdhelper.ExactArgs(1)),
		Action:    c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *NormalizeVersionCommand) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "version-requirement",
			Aliases:     []string{"v"},
			Usage:       "version requirement to resolve",
			Value:       c.VersionRequirement,
			Destination: &c.VersionRequirement,
		},
	}
	return append(flags, c.Registry.Flags()...)
}

// Run is the main function for the current command.
func (c *NormalizeVersionCommand) Run(ctx context.Context, cmd *cli.Command) error {
	apiClient, _, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	version, err := apiClient.GetLatestMatchingVersion(ctx, cmd.Args().First(), c.VersionRequirement)
	if err != nil {
		return err
	}
	cmdhelper.Fprintf(cmd.Writer, "%s", version.Version)
	return nil
}
