package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/client"
	"github.com/rangekit/depot/pkg/cmdhelper"
	"github.com/rangekit/depot/pkg/commands/internal/options"
)

// NewFetchCommand returns a command with default values.
func NewFetchCommand() *FetchCommand {
	return &FetchCommand{
		Registry:           options.NewRegistry(),
		UnpackLevel:        string(client.UnpackRegular),
		VersionRequirement: "*",
	}
}

// FetchCommand downloads and unpacks a package.
type FetchCommand struct {
	Registry           *options.Registry
	UnpackLevel        string
	VersionRequirement string
	SavePath           string
}

// ToCLI transforms to a *cli.Command.
func (c *FetchCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download a package from the registry",
		ArgsUsage: "PACKAGE_NAME",
		UsageText: `depot fetch [OPTIONS] PACKAGE_NAME

# Fetch the latest version, unpacked
$ depot fetch my-package

# Fetch a compatible 1.x version as a raw archive
$ depot fetch --version-requirement "^1.0" --unpack-level raw my-package
`,
		Flags:  c.Flags(),
		Before: cmdhelper.AsBefore(cmdhelper.ExactArgs(1)),
		Action: c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *FetchCommand) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "unpack-level",
			Aliases:     []string{"u"},
			Usage:       "one of raw, uncompressed, regular",
			Value:       c.UnpackLevel,
			Destination: &c.UnpackLevel,
		},
		&cli.StringFlag{
			Name:        "version-requirement",
			Aliases:     []string{"v"},
			Usage:       "version requirement of the package to fetch",
			Value:       c.VersionRequirement,
			Destination: &c.VersionRequirement,
		},
		&cli.StringFlag{
			Name:        "save-path",
			Aliases:     []string{"s"},
			Usage:       "save path for the package, defaults to the configured download path",
			Destination: &c.SavePath,
		},
	}
	return append(flags, c.Registry.Flags()...)
}

// Run is the main function for the current command.
func (c *FetchCommand) Run(ctx context.Context, cmd *cli.Command) error {
	level, err := client.ParseUnpackLevel(c.UnpackLevel)
	if err != nil {
		return err
	}
	apiClient, configuration, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	savePath := c.SavePath
	if savePath == "" {
		savePath = configuration.DownloadPath()
	}
	target, err := apiClient.Fetch(ctx, cmd.Args().First(), c.VersionRequirement, level, savePath)
	if err != nil {
		return err
	}
	cmdhelper.Fprintf(cmd.Writer, "Package saved to %s", target)
	return nil
}
