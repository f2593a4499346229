package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validVMManifest = `
[package]
name = "test-package"
description = "a vm package"
version = "1.0.4"
authors = ["Robert <robert@example.com>"]
license = "MIT"
readme = "README.md"

[content]
type = "vm"

[virtual-machine]
operating_system = "Debian"
architecture = "arm64"
type = "OVA"
file_path = "vm/image.ova"
`

const validFeatureManifest = `
[package]
name = "my-feature"
description = "installs a script"
version = "0.2.0"
license = "Apache-2.0"
readme = "README.md"
assets = [
    ["files/run.sh", "/usr/local/bin/run.sh", 755],
    ["files/config.yml", "/etc/feature/"],
]

[content]
type = "feature"

[feature]
type = "service"
action = "run.sh"
`

func TestParseValidVM(t *testing.T) {
	m, err := Parse([]byte(validVMManifest))
	require.NoError(t, err)

	assert.Equal(t, "test-package", m.Package.Name)
	assert.Equal(t, "1.0.4", m.Package.Version)
	assert.Equal(t, KindVM, m.Content.Kind)
	require.NotNil(t, m.VirtualMachine)
	assert.Equal(t, OSDebian, m.VirtualMachine.OperatingSystem)
	assert.Equal(t, ArchARM64, m.VirtualMachine.Architecture)
}

func TestParseValidFeature(t *testing.T) {
	m, err := Parse([]byte(validFeatureManifest))
	require.NoError(t, err)

	require.Len(t, m.Package.Assets, 2)
	assert.Equal(t, "files/run.sh", m.Package.Assets[0].Source())
	assert.Equal(t, "/usr/local/bin/run.sh", m.Package.Assets[0].Destination())
	assert.Equal(t, "755", m.Package.Assets[0].Permissions())
	assert.Empty(t, m.Package.Assets[1].Permissions())
}

func TestUnknownOperatingSystemDecodesToUnknown(t *testing.T) {
	const doc = `
[package]
name = "test-package"
description = "d"
version = "1.0.0"
license = "MIT"
readme = "README.md"

[content]
type = "vm"

[virtual-machine]
operating_system = "TempleOS"
architecture = "riscv"
type = "OVA"
file_path = "vm/image.ova"
`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, OSUnknown, m.VirtualMachine.OperatingSystem)
	assert.Equal(t, ArchUnknown, m.VirtualMachine.Architecture)
}

func TestUnknownContentKindFails(t *testing.T) {
	const doc = `
[package]
name = "test-package"
description = "d"
version = "1.0.0"
license = "MIT"
readme = "README.md"

[content]
type = "sandwich"
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandwich")
}

func TestFeatureWithoutAssetsFails(t *testing.T) {
	const doc = `
[package]
name = "my-feature"
description = "d"
version = "0.2.0"
license = "MIT"
readme = "README.md"

[content]
type = "feature"

[feature]
type = "service"
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Assets are required for 'Feature' package type")
}

func TestShortAssetRowNamesIndex(t *testing.T) {
	const doc = `
[package]
name = "my-feature"
description = "d"
version = "0.2.0"
license = "MIT"
readme = "README.md"
assets = [
    ["files/ok.sh", "/usr/local/bin/ok.sh"],
    ["only-source"],
]

[content]
type = "feature"

[feature]
type = "service"
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package.assets[1] is invalid")
}

func TestKindWithoutDetailBlockFails(t *testing.T) {
	const doc = `
[package]
name = "test-package"
description = "d"
version = "1.0.0"
license = "MIT"
readme = "README.md"

[content]
type = "vm"
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VM package info not found")
}

func TestMultipleDetailBlocksFail(t *testing.T) {
	const doc = `
[package]
name = "test-package"
description = "d"
version = "1.0.0"
license = "MIT"
readme = "README.md"
assets = [["a", "/b"]]

[content]
type = "feature"

[feature]
type = "service"

[event]
action = "boom"
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple content types")
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("some-package_123"))
	assert.Error(t, ValidateName("this is incorrect formatting"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("nope/slash"))
}

func TestValidateVersion(t *testing.T) {
	assert.NoError(t, ValidateVersion("1.0.4"))
	assert.NoError(t, ValidateVersion("0.1.0-alpha.1+build5"))
	assert.Error(t, ValidateVersion("version 23"))
	assert.Error(t, ValidateVersion("1.0"))
}

func TestFindFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, Filename), []byte(validVMManifest), 0o644))
	nested := filepath.Join(root, "a", "b", "c", "d")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := FindFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, Filename), found)
}

func TestFindFileMissing(t *testing.T) {
	_, err := FindFile(t.TempDir())
	assert.Error(t, err)
}
