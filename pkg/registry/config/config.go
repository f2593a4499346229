// Package config loads the server configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Keycloak holds the verification material for signed bearer tokens.
type Keycloak struct {
	// PemContent is the base64 body of the issuer's RSA public key,
	// without the PEM armor lines.
	PemContent string `yaml:"pem_content"`
}

// Configuration is the server configuration, read once at boot.
type Configuration struct {
	Hostname      string   `yaml:"hostname"`
	PackageFolder string   `yaml:"package_folder"`
	DatabaseURL   string   `yaml:"database_url"`
	Keycloak      Keycloak `yaml:"keycloak"`

	// LogLevel is optional; one of ["debug", "info", "warn", "error"].
	LogLevel string `yaml:"log_level,omitempty"`
	// LogFile is optional; enables rotated file logging when set.
	LogFile string `yaml:"log_file,omitempty"`
}

// Read loads the configuration from the path given as the first program
// argument.
func Read(arguments []string) (*Configuration, error) {
	if len(arguments) < 2 {
		return nil, fmt.Errorf("configuration path argument missing")
	}
	return ReadFile(arguments[1])
}

// ReadFile loads the configuration from the given path.
func ReadFile(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &Configuration{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("unable to parse configuration: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Configuration) validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("configuration is missing hostname")
	}
	if c.PackageFolder == "" {
		return fmt.Errorf("configuration is missing package_folder")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("configuration is missing database_url")
	}
	return nil
}

// PemBlock returns the PEM-armored form of the configured public key, or
// an empty string when no key is configured.
func (c *Configuration) PemBlock() string {
	if c.Keycloak.PemContent == "" {
		return ""
	}
	return "-----BEGIN PUBLIC KEY-----\n" + c.Keycloak.PemContent + "\n-----END PUBLIC KEY-----"
}
