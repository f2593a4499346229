// Package manifest models the package.toml file shipped at the root of
// every package and validates it before anything touches the registry.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"

	"github.com/rangekit/depot/pkg/errdefs"
)

// Filename is the well-known name of the manifest file.
const Filename = "package.toml"

// validName matches one word of alphanumeric, `-`, or `_` characters.
var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Manifest is the declarative description of a package.
type Manifest struct {
	Package        Body            `toml:"package" json:"package"`
	Content        Content         `toml:"content" json:"content"`
	VirtualMachine *VirtualMachine `toml:"virtual-machine,omitempty" json:"virtual-machine,omitempty"`
	Feature        *Feature        `toml:"feature,omitempty" json:"feature,omitempty"`
	Condition      *Condition      `toml:"condition,omitempty" json:"condition,omitempty"`
	Event          *Event          `toml:"event,omitempty" json:"event,omitempty"`
	Inject         *Inject         `toml:"inject,omitempty" json:"inject,omitempty"`
	Malware        *Malware        `toml:"malware,omitempty" json:"malware,omitempty"`
	Exercise       *Exercise       `toml:"exercise,omitempty" json:"exercise,omitempty"`
	Other          *Other          `toml:"other,omitempty" json:"other,omitempty"`
}

// Body is the [package] table.
type Body struct {
	Name        string   `toml:"name" json:"name"`
	Description string   `toml:"description" json:"description"`
	Version     string   `toml:"version" json:"version"`
	Authors     []string `toml:"authors,omitempty" json:"authors,omitempty"`
	License     string   `toml:"license" json:"license"`
	Readme      string   `toml:"readme" json:"readme"`
	Assets      []Asset  `toml:"assets,omitempty" json:"assets,omitempty"`
}

// Asset is one row of the assets list. The first two elements are the
// relative source path and the absolute destination path; the optional
// third element is a permissions triplet.
type Asset []any

// Source returns the relative source path of the asset.
func (a Asset) Source() string {
	if len(a) > 0 {
		return fmt.Sprint(a[0])
	}
	return ""
}

// Destination returns the absolute destination path of the asset.
func (a Asset) Destination() string {
	if len(a) > 1 {
		return fmt.Sprint(a[1])
	}
	return ""
}

// Permissions returns the optional permissions triplet, empty when absent.
func (a Asset) Permissions() string {
	if len(a) > 2 {
		return fmt.Sprint(a[2])
	}
	return ""
}

// Content is the [content] table selecting the package kind.
type Content struct {
	Kind    Kind      `toml:"type" json:"type"`
	Preview []Preview `toml:"preview,omitempty" json:"preview,omitempty"`
}

// Preview points at illustrative material bundled with the package.
type Preview struct {
	Kind  PreviewKind `toml:"type" json:"type"`
	Value []string    `toml:"value" json:"value"`
}

// VirtualMachine is the detail block for vm packages.
type VirtualMachine struct {
	Accounts        []Account       `toml:"accounts,omitempty" json:"accounts,omitempty"`
	DefaultAccount  string          `toml:"default_account,omitempty" json:"default_account,omitempty"`
	OperatingSystem OperatingSystem `toml:"operating_system,omitempty" json:"operating_system,omitempty"`
	Architecture    Architecture    `toml:"architecture,omitempty" json:"architecture,omitempty"`
	Type            string          `toml:"type" json:"type"`
	FilePath        string          `toml:"file_path" json:"file_path"`
	ReadmePath      string          `toml:"readme_path,omitempty" json:"readme_path,omitempty"`
}

// Account is a pre-provisioned credential inside a vm package.
type Account struct {
	Name     string `toml:"name" json:"name"`
	Password string `toml:"password" json:"password"`
}

// Feature is the detail block for feature packages.
type Feature struct {
	Type   FeatureType `toml:"type" json:"type"`
	Action string      `toml:"action,omitempty" json:"action,omitempty"`
}

// Condition is the detail block for condition packages.
type Condition struct {
	Action   string `toml:"action" json:"action"`
	Interval uint32 `toml:"interval" json:"interval"`
}

// Event is the detail block for event packages.
type Event struct {
	Action string `toml:"action" json:"action"`
}

// Inject is the detail block for inject packages.
type Inject struct {
	Action string `toml:"action" json:"action"`
}

// Malware is the detail block for malware packages.
type Malware struct {
	Action string `toml:"action" json:"action"`
}

// Exercise is the detail block for exercise packages.
type Exercise struct {
	FilePath string `toml:"file_path" json:"file_path"`
}

// Other is the detail block for uncategorized packages.
type Other struct{}

// Parse decodes manifest bytes and validates the result.
func Parse(data []byte) (*Manifest, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode decodes manifest bytes without validating cross-field rules.
func Decode(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid manifest: %s", err)
	}
	return m, nil
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// FindFile walks upward from dir looking for the nearest ancestor
// directory that contains a manifest, popping two path segments per level.
func FindFile(dir string) (string, error) {
	path := filepath.Join(dir, Filename)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, nil
	}
	parent := filepath.Dir(filepath.Dir(dir))
	if parent == dir || filepath.Dir(dir) == dir {
		return "", errdefs.Newf(errdefs.ErrNotFound, "could not find %s", Filename)
	}
	return FindFile(parent)
}

// ValidateName reports whether name is one word of alphanumeric, `-`, or
// `_` characters.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return errdefs.Newf(errdefs.ErrInvalidParameter,
			"name %q must be one word of alphanumeric, `-`, or `_` characters", name)
	}
	return nil
}

// ValidateVersion reports whether version parses per Semantic Versioning
// 2.0.0.
func ValidateVersion(version string) error {
	if _, err := semver.StrictNewVersion(version); err != nil {
		return errdefs.Newf(errdefs.ErrInvalidParameter,
			"version %q must match Semantic Versioning 2.0.0 https://semver.org/", version)
	}
	return nil
}
