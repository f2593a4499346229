package manifest

import (
	"fmt"
	"strings"
)

// Kind selects what kind of content a package carries. Unknown kinds are
// rejected at decode time.
type Kind string

// Known content kinds.
const (
	KindVM        Kind = "VM"
	KindFeature   Kind = "Feature"
	KindCondition Kind = "Condition"
	KindInject    Kind = "Inject"
	KindEvent     Kind = "Event"
	KindMalware   Kind = "Malware"
	KindExercise  Kind = "Exercise"
	KindOther     Kind = "Other"
)

var kinds = map[string]Kind{
	"vm":        KindVM,
	"feature":   KindFeature,
	"condition": KindCondition,
	"inject":    KindInject,
	"event":     KindEvent,
	"malware":   KindMalware,
	"exercise":  KindExercise,
	"other":     KindOther,
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	kind, ok := kinds[strings.ToLower(string(text))]
	if !ok {
		return fmt.Errorf("unknown content type %q", string(text))
	}
	*k = kind
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// RequiresAssets reports whether packages of this kind must declare a
// non-empty assets list.
func (k Kind) RequiresAssets() bool {
	switch k {
	case KindFeature, KindCondition, KindInject, KindEvent, KindMalware, KindExercise:
		return true
	}
	return false
}

// PreviewKind enumerates the supported preview media.
type PreviewKind string

// Known preview kinds.
const (
	PreviewPicture PreviewKind = "Picture"
	PreviewVideo   PreviewKind = "Video"
	PreviewCode    PreviewKind = "Code"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PreviewKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "picture":
		*k = PreviewPicture
	case "video":
		*k = PreviewVideo
	case "code":
		*k = PreviewCode
	default:
		return fmt.Errorf("unknown preview type %q", string(text))
	}
	return nil
}

// FeatureType enumerates the supported feature flavors.
type FeatureType string

// Known feature types.
const (
	FeatureService       FeatureType = "Service"
	FeatureConfiguration FeatureType = "Configuration"
	FeatureArtifact      FeatureType = "Artifact"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FeatureType) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "service":
		*t = FeatureService
	case "configuration":
		*t = FeatureConfiguration
	case "artifact":
		*t = FeatureArtifact
	default:
		return fmt.Errorf("unknown feature type %q", string(text))
	}
	return nil
}

// OperatingSystem enumerates the operating systems a vm package may
// declare. Values outside the known set decode to OSUnknown instead of
// failing, so that new systems can ship before the registry learns about
// them.
type OperatingSystem string

// Known operating systems.
const (
	OSAlmaLinux                   OperatingSystem = "AlmaLinux"
	OSAmazonLinux                 OperatingSystem = "AmazonLinux"
	OSAsianux                     OperatingSystem = "Asianux"
	OSCentOS                      OperatingSystem = "CentOS"
	OSDebian                      OperatingSystem = "Debian"
	OSDebianGNULinux              OperatingSystem = "DebianGNULinux"
	OSEComStation                 OperatingSystem = "EComStation"
	OSFedora                      OperatingSystem = "Fedora"
	OSFlatcar                     OperatingSystem = "Flatcar"
	OSFreeBSD                     OperatingSystem = "FreeBSD"
	OSKylinLinuxAdvancedServer    OperatingSystem = "KylinLinuxAdvancedServer"
	OSMacOs                       OperatingSystem = "MacOs"
	OSMiracleLinux                OperatingSystem = "MiracleLinux"
	OSNeoKylinLinuxAdvancedServer OperatingSystem = "NeoKylinLinuxAdvancedServer"
	OSOpenSuse                    OperatingSystem = "OpenSuse"
	OSOracleLinux                 OperatingSystem = "OracleLinux"
	OSOSX                         OperatingSystem = "OSX"
	OSPardus                      OperatingSystem = "Pardus"
	OSPhoton                      OperatingSystem = "Photon"
	OSRedHatEnterpriseLinux       OperatingSystem = "RedHatEnterpriseLinux"
	OSRockyLinux                  OperatingSystem = "RockyLinux"
	OSSCOOpenServer               OperatingSystem = "SCOOpenServer"
	OSSCOUnixWare                 OperatingSystem = "SCOUnixWare"
	OSSolaris                     OperatingSystem = "Solaris"
	OSSUSELinuxEnterprise         OperatingSystem = "SUSELinuxEnterprise"
	OSUbuntu                      OperatingSystem = "Ubuntu"
	OSWindows10                   OperatingSystem = "Windows10"
	OSWindows11                   OperatingSystem = "Windows11"
	OSWindows2000                 OperatingSystem = "Windows2000"
	OSWindows7                    OperatingSystem = "Windows7"
	OSWindows8                    OperatingSystem = "Windows8"
	OSWindowsServer2003           OperatingSystem = "WindowsServer2003"
	OSWindowsServer2008           OperatingSystem = "WindowsServer2008"
	OSWindowsServer2012           OperatingSystem = "WindowsServer2012"
	OSWindowsServer2016           OperatingSystem = "WindowsServer2016"
	OSWindowsServer2019           OperatingSystem = "WindowsServer2019"
	OSWindowsServer2022           OperatingSystem = "WindowsServer2022"
	OSWindowsVista                OperatingSystem = "WindowsVista"
	OSWindowsXP                   OperatingSystem = "WindowsXP"
	OSUnknown                     OperatingSystem = "Unknown"
)

var operatingSystems = func() map[string]OperatingSystem {
	all := []OperatingSystem{
		OSAlmaLinux, OSAmazonLinux, OSAsianux, OSCentOS, OSDebian,
		OSDebianGNULinux, OSEComStation, OSFedora, OSFlatcar, OSFreeBSD,
		OSKylinLinuxAdvancedServer, OSMacOs, OSMiracleLinux,
		OSNeoKylinLinuxAdvancedServer, OSOpenSuse, OSOracleLinux, OSOSX,
		OSPardus, OSPhoton, OSRedHatEnterpriseLinux, OSRockyLinux,
		OSSCOOpenServer, OSSCOUnixWare, OSSolaris, OSSUSELinuxEnterprise,
		OSUbuntu, OSWindows10, OSWindows11, OSWindows2000, OSWindows7,
		OSWindows8, OSWindowsServer2003, OSWindowsServer2008,
		OSWindowsServer2012, OSWindowsServer2016, OSWindowsServer2019,
		OSWindowsServer2022, OSWindowsVista, OSWindowsXP,
	}
	m := make(map[string]OperatingSystem, len(all))
	for _, os := range all {
		m[string(os)] = os
	}
	return m
}()

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OperatingSystem) UnmarshalText(text []byte) error {
	if os, ok := operatingSystems[string(text)]; ok {
		*o = os
	} else {
		*o = OSUnknown
	}
	return nil
}

// Architecture enumerates the CPU architectures a vm package may declare.
// Values outside the known set decode to ArchUnknown instead of failing.
type Architecture string

// Known architectures.
const (
	ArchAMD64   Architecture = "amd64"
	ArchARM64   Architecture = "arm64"
	ArchARMHF   Architecture = "armhf"
	ArchI386    Architecture = "i386"
	ArchUnknown Architecture = "Unknown"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Architecture) UnmarshalText(text []byte) error {
	switch string(text) {
	case string(ArchAMD64), string(ArchARM64), string(ArchARMHF), string(ArchI386):
		*a = Architecture(text)
	default:
		*a = ArchUnknown
	}
	return nil
}
