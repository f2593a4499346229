// Package client implements the registry API client and its local
// configuration.
package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/util/homedir"
)

const (
	// ConfigPathEnv points at the client configuration file.
	ConfigPathEnv = "DEPOT_CONFIG"

	// DefaultRegistryName is the registry used when none is named.
	DefaultRegistryName = "main-registry"

	// tokenStoreFilename sits beside the configuration file and holds
	// the per-registry bearer tokens.
	tokenStoreFilename = "tokens.store"
)

// Registry is one configured registry endpoint.
type Registry struct {
	API string `toml:"api"`
}

// PackageSettings holds client-side package handling defaults.
type PackageSettings struct {
	DownloadPath string `toml:"download_path"`
}

// Configuration is the client configuration file.
type Configuration struct {
	Registries map[string]Registry `toml:"registries"`
	Package    PackageSettings     `toml:"package"`

	// path the configuration was loaded from; the token store lives
	// beside it
	path string
}

// LoadConfiguration reads the configuration from the file named by the
// DEPOT_CONFIG environment variable, falling back to
// ~/.depot/configuration.toml.
func LoadConfiguration() (*Configuration, error) {
	path := os.Getenv(ConfigPathEnv)
	if path == "" {
		home, err := homedir.Get()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".depot", "configuration.toml")
	}
	return LoadConfigurationFile(path)
}

// LoadConfigurationFile reads the configuration at path.
func LoadConfigurationFile(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read client configuration: %w", err)
	}
	c := &Configuration{}
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("unable to parse client configuration: %w", err)
	}
	c.path = path
	return c, nil
}

// RegistryAPI resolves a registry name to its API base URL.
func (c *Configuration) RegistryAPI(name string) (string, error) {
	registry, ok := c.Registries[name]
	if !ok || registry.API == "" {
		return "", errdefs.Newf(errdefs.ErrNotFound, "registry %q is not configured", name)
	}
	return registry.API, nil
}

// DownloadPath returns the configured save path, defaulting to the
// current directory.
func (c *Configuration) DownloadPath() string {
	if c.Package.DownloadPath == "" {
		return "."
	}
	return c.Package.DownloadPath
}

func (c *Configuration) tokenStorePath() string {
	return filepath.Join(filepath.Dir(c.path), tokenStoreFilename)
}

// TokenStore is the per-registry bearer token file.
type TokenStore struct {
	Tokens map[string]string `toml:"tokens"`

	path string
}

// LoadTokenStore reads the token store beside the configuration file. A
// missing file yields an empty store.
func (c *Configuration) LoadTokenStore() (*TokenStore, error) {
	store := &TokenStore{Tokens: map[string]string{}, path: c.tokenStorePath()}
	data, err := os.ReadFile(store.path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, store); err != nil {
		return nil, fmt.Errorf("unable to parse token store: %w", err)
	}
	if store.Tokens == nil {
		store.Tokens = map[string]string{}
	}
	return store, nil
}

// Get returns the stored token for a registry, empty when absent.
func (s *TokenStore) Get(registry string) string {
	return s.Tokens[registry]
}

// Set stores a token for a registry and persists the file with owner-only
// permissions.
func (s *TokenStore) Set(registry, token string) error {
	s.Tokens[registry] = token
	data, err := toml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
