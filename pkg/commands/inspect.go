package commands

import (
	"context"
	"encoding/json"

	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/cmdhelper"
	"github.com/rangekit/depot/pkg/manifest"
)

// NewInspectCommand returns a command with default values.
func NewInspectCommand() *InspectCommand {
	return &InspectCommand{
		PackagePath: manifest.Filename,
	}
}

// InspectCommand parses and prints a local manifest.
type InspectCommand struct {
	PackagePath string
	Pretty      bool
}

// ToCLI transforms to a *cli.Command.
func (c *InspectCommand) ToCLI() *cli.Command {
	return &cli.Command{
		Name:   "inspect",
		Usage:  "Validate and print the package manifest",
		Flags:  c.Flags(),
		Before: cmdhelper.AsBefore(cmdhelper.NoArgs()),
		Action: c.Run,
	}
}

// Flags defines the flags related to the current command.
func (c *InspectCommand) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "package-path",
			Aliases:     []string{"p"},
			Usage:       "path of the package manifest",
			Value:       c.PackagePath,
			Destination: &c.PackagePath,
		},
		&cli.BoolFlag{
			Name:        "pretty",
			Usage:       "pretty print output",
			Destination: &c.Pretty,
		},
	}
}

// Run is the main function for the current command.
func (c *InspectCommand) Run(_ context.Context, cmd *cli.Command) error {
	m, err := manifest.ParseFile(c.PackagePath)
	if err != nil {
		return err
	}
	var data []byte
	if c.Pretty {
		data, err = json.MarshalIndent(m, "", "  ")
	} else {
		data, err = json.Marshal(m)
	}
	if err != nil {
		return err
	}
	cmdhelper.Fprintf(cmd.Writer, "%s", string(data))
	return nil
}
