// Package commands implements the depot cli commands.
package commands

import (
	"context"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/client"
	"github.com/rangekit/depot/pkg/cmdhelper"
	"github.com/rangekit/depot/pkg/commands/internal/options"
)

// NewPublishCommand returns a command with default values.
func NewPublishCommand() *PublishCommand {
	return &PublishCommand{
		Registry: options.NewRegistry(),
		Timeout:  int64(client.DefaultPublishTimeout / time.Second),
	}
}

// PublishCommand archives the current project and uploads it.
type PublishCommand struct {
	Registry *options.Registry
	Timeout  int64
}

// ToCLI transforms to a *cli.Command.
func (c *PublishCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Package the current project and upload it to the registry",
		UsageText: `depot publish [OPTIONS]

# Publish the project containing the working directory
$ depot publish

# Publish with a longer timeout
$ depot publish --timeout 600
`,
		Flags:  c.Flags(),
		Before: cmdhelper.AsBefore(cmdhelper.NoArgs()),
		Action: c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *PublishCommand) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "timeout",
			Aliases:     []string{"t"},
			Usage:       "timeout in seconds before publish fails",
			Value:       c.Timeout,
			Destination: &c.Timeout,
		},
	}
	return append(flags, c.Registry.Flags()...)
}

// Run is the main function for the current command.
func (c *PublishCommand) Run(ctx context.Context, cmd *cli.Command) error {
	apiClient, _, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := apiClient.Publish(ctx, workDir, time.Duration(c.Timeout)*time.Second); err != nil {
		return err
	}
	cmdhelper.Fprintf(cmd.Writer, "Package uploaded successfully")
	return nil
}
