package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/cmdhelper"
	"github.com/rangekit/depot/pkg/commands/internal/options"
)

// NewOwnerCommand returns a command with default values.
func NewOwnerCommand() *OwnerCommand {
	return &OwnerCommand{
		Registry: options.NewRegistry(),
	}
}

// OwnerCommand manages the owner list of a package.
type OwnerCommand struct {
	Registry *options.Registry
}

// ToCLI transforms to a *cli.Command.
func (c *OwnerCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "owner",
		Usage: "Manage the owners of a package",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the owners of a package",
				ArgsUsage: "PACKAGE_NAME",
				Flags:     c.Registry.Flags(),
				Before:    cmdhelper.AsBefore(cmdhelper.ExactArgs(1)),
				Action:    c.runList,
			},
			{
				Name:      "add",
				Usage:     "Add an owner to a package",
				ArgsUsage: "PACKAGE_NAME EMAIL",
				Flags:     c.Registry.Flags(),
				Before:    cmdhelper.AsBefore(cmdhelper.ExactArgs(2)),
				Action:    c.runAdd,
			},
			{
				Name:      "remove",
				Usage:     "Remove an owner from a package",
				ArgsUsage: "PACKAGE_NAME EMAIL",
				Flags:     c.Registry.Flags(),
				Before:    cmdhelper.AsBefore(cmdhelper.ExactArgs(2)),
				Action:    c.runRemove,
			},
		},
	}
}

func (c *OwnerCommand) runList(ctx context.Context, cmd *cli.Command) error {
	apiClient, _, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	owners, err := apiClient.ListOwners(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	for _, email := range owners {
		cmdhelper.Fprintf(cmd.Writer, "%s", email)
	}
	return nil
}

func (c *OwnerCommand) runAdd(ctx context.Context, cmd *cli.Command) error {
	apiClient, _, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	name, email := cmd.Args().Get(0), cmd.Args().Get(1)
	if err := apiClient.AddOwner(ctx, name, email); err != nil {
		return err
	}
	cmdhelper.Fprintf(cmd.Writer, "Added %s as an owner of %s", email, name)
	return nil
}

func (c *OwnerCommand) runRemove(ctx context.Context, cmd *cli.Command) error {
	apiClient, _, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	name, email := cmd.Args().Get(0), cmd.Args().Get(1)
	if err := apiClient.RemoveOwner(ctx, name, email); err != nil {
		return err
	}
	cmdhelper.Fprintf(cmd.Writer, "Removed %s from the owners of %s", email, name)
	return nil
}
