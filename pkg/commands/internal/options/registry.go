// Package options defines flag groups shared by the cli commands.
package options

import (
	"github.com/urfave/cli/v3"

	"github.com/rangekit/depot/pkg/client"
)

const (
	// RegistryFlagCategory is the category of the registry flags.
	RegistryFlagCategory = "[Registry]"
)

// NewRegistry returns a new *Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Name: client.DefaultRegistryName,
	}
}

// Registry selects which configured registry a command talks to.
type Registry struct {
	// Name is the registry name in the client configuration.
	Name string
}

// Flags returns the []cli.Flag related to current options.
func (o *Registry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "registry-name",
			Aliases:     []string{"r"},
			Usage:       "registry to use",
			Sources:     cli.EnvVars("DEPOT_REGISTRY"),
			Value:       o.Name,
			Destination: &o.Name,
			Category:    RegistryFlagCategory,
		},
	}
}

// Connect loads the client configuration and returns a client for the
// selected registry together with the loaded configuration.
func (o *Registry) Connect() (*client.Client, *client.Configuration, error) {
	configuration, err := client.LoadConfiguration()
	if err != nil {
		return nil, nil, err
	}
	api, err := configuration.RegistryAPI(o.Name)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := configuration.LoadTokenStore()
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(api, tokens.Get(o.Name))
	if err != nil {
		return nil, nil, err
	}
	return c, configuration, nil
}
