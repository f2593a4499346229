package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/cmdhelper"
	"github.com/rangekit/depot/pkg/commands/internal/options"
)

// NewTokenCommand returns a command with default values.
func NewTokenCommand() *TokenCommand {
	return &TokenCommand{
		Registry: options.NewRegistry(),
	}
}

// TokenCommand manages API tokens.
type TokenCommand struct {
	Registry *options.Registry
}

// ToCLI transforms to a *cli.Command.
func (c *TokenCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Manage registry API tokens",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a new API token; the secret is shown once",
				ArgsUsage: "TOKEN_NAME",
				Flags:     c.Registry.Flags(),
				Before:    cmdhelper.AsBefore(cmdhelper.ExactArgs(1)),
				Action:    c.runCreate,
			},
			{
				Name:   "list",
				Usage:  "List your API tokens",
				Flags:  c.Registry.Flags(),
				Before: cmdhelper.AsBefore(cmdhelper.NoArgs()),
				Action: c.runList,
			},
		},
	}
}

func (c *TokenCommand) runCreate(ctx context.Context, cmd *cli.Command) error {
	apiClient, _, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	created, err := apiClient.CreateToken(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	cmdhelper.Fprintf(cmd.Writer, "Created token %s", created.Name)
	cmdhelper.Fprintf(cmd.Writer, "%s", created.Token)
	cmdhelper.Fprintf(cmd.Writer, "Store it now: it will not be shown again")
	return nil
}

func (c *TokenCommand) runList(ctx context.Context, cmd *cli.Command) error {
	apiClient, _, err := c.Registry.Connect()
	if err != nil {
		return err
	}
	tokens, err := apiClient.ListTokens(ctx)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		cmdhelper.Fprintf(cmd.Writer, "%s\t%s\t%s", token.ID, token.Name, token.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
