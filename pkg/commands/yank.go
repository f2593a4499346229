package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/cmdhelper"
	"github.com/rangekit/depot/pkg/commands/internal/options"
)

// NewYankCommand returns a command with default values.
func NewYankCommand() *YankCommand {
	return &YankCommand{
		Registry: options.NewRegistry(),
	}
}

// YankCommand hides or un-hides a published version.
type YankCommand struct {
	Registry *options.Registry
	Version  string
	Undo     bool
}

// ToCLI transforms to a *cli.Command.
func (c *YankCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:      "yank",
		Usage:     "Yank a published version so new fetches skip it",
		ArgsUsage: "PACKAGE_NAME",
		UsageText: `depot yank [OPTIONS] PACKAGE_NAME

# Hide version 1.2.0
$ depot yank --package-version 1.2.0 my-package

# Make it visible again
$ depot yank --package-version 1.2.0 --undo my-package
`,
		Flags:  c.Flags(),
		Before: cmdhelper.AsBefore(cmdhelper.ExactArgs(1)),
		Action: c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *YankCommand) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "package-version",
			Aliases:     []string{"v"},
			Usage:       "version of the package to yank",
			Required:    true,
			Destination: &c.Version,
		},
		&cli.BoolFlag{
			Name:        "undo",
			Aliases:     []string{"u"},
			Usage:       "undo the yank",
			Destination: &c.Undo,
		},
	}
	return append(flags, c.Registry.Flags()...)
}

// Run is the main function for the current command.
func (c *YankCommand) Run(ctx context.Context, cmd *cli.Command) error {
	apiClient, _, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	name := cmd.Args().First()
	if err := apiClient.Yank(ctx, name, c.Version, !c.Undo); err != nil {
		return err
	}
	if c.Undo {
		cmdhelper.Fprintf(cmd.Writer, "Version %s of %s is visible again", c.Version, name)
	} else {
		cmdhelper.Fprintf(cmd.Writer, "Version %s of %s is yanked", c.Version, name)
	}
	return nil
}
