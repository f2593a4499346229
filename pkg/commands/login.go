package commands

import (
	"context"

	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/client"
	"github.com/rangekit/depot/pkg/cmdhelper"
	"github.com/rangekit/depot/pkg/commands/internal/options"
	"github.com/rangekit/depot/pkg/errdefs"
)

// NewLoginCommand returns a command with default values.
func NewLoginCommand() *LoginCommand {
	return &LoginCommand{
		Registry: options.NewRegistry(),
	}
}

// LoginCommand stores a bearer token for a registry.
type LoginCommand struct {
	Registry *options.Registry
	Token    string
}

// ToCLI transforms to a *cli.Command.
func (c *LoginCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Store the access token for a registry",
		UsageText: `depot login [OPTIONS]

# Prompt for the token interactively
$ depot login

# Non-interactive, e.g. in CI
$ depot login --token "$DEPOT_TOKEN"
`,
		Flags:  c.Flags(),
		Before: cmdhelper.AsBefore(cmdhelper.NoArgs()),
		Action: c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *LoginCommand) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "token",
			Usage:       "token value; prompted for when omitted",
			Sources:     cli.EnvVars("DEPOT_TOKEN"),
			Destination: &c.Token,
		},
	}
	return append(flags, c.Registry.Flags()...)
}

// Run is the main function for the current command.
func (c *LoginCommand) Run(_ context.Context, cmd *cli.Command) error {
	configuration, err := client.LoadConfiguration()
	if err != nil {
		return err
	}
	if _, err := configuration.RegistryAPI(c.Registry.Name); err != nil {
		return err
	}

	token := c.Token
	if token == "" {
		prompt := promptui.Prompt{
			Label: "Token",
			Mask:  '*',
		}
		token, err = prompt.Run()
		if err != nil {
			return err
		}
	}
	if token == "" {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "token must not be empty")
	}

	store, err := configuration.LoadTokenStore()
	if err != nil {
		return err
	}
	if err := store.Set(c.Registry.Name, token); err != nil {
		return err
	}
	cmdhelper.Fprintf(cmd.Writer, "Token stored for registry %s", c.Registry.Name)
	return nil
}
