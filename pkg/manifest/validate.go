package manifest

import (
	"github.com/rangekit/depot/pkg/errdefs"
)

// Validate enforces the cross-field rules of the manifest: the name and
// version are well-formed, the content kind matches exactly one populated
// detail block, and kinds that install files declare their assets.
func (m *Manifest) Validate() error {
	if err := ValidateName(m.Package.Name); err != nil {
		return err
	}
	if err := ValidateVersion(m.Package.Version); err != nil {
		return err
	}
	return m.validateContent()
}

func (m *Manifest) validateContent() error {
	populated := 0
	for _, present := range []bool{
		m.VirtualMachine != nil,
		m.Feature != nil,
		m.Condition != nil,
		m.Inject != nil,
		m.Event != nil,
		m.Malware != nil,
		m.Exercise != nil,
		m.Other != nil,
	} {
		if present {
			populated++
		}
	}
	if populated > 1 {
		return errdefs.Newf(errdefs.ErrInvalidParameter,
			"multiple content types per package are not supported")
	}

	var detail any
	switch m.Content.Kind {
	case KindVM:
		detail = m.VirtualMachine
	case KindFeature:
		detail = m.Feature
	case KindCondition:
		detail = m.Condition
	case KindInject:
		detail = m.Inject
	case KindEvent:
		detail = m.Event
	case KindMalware:
		detail = m.Malware
	case KindExercise:
		detail = m.Exercise
	case KindOther:
		detail = m.Other
	default:
		return errdefs.Newf(errdefs.ErrInvalidParameter, "unknown content type %q", m.Content.Kind)
	}
	if isNilDetail(detail) {
		return errdefs.Newf(errdefs.ErrInvalidParameter,
			"%s package info not found", m.Content.Kind)
	}

	if m.Content.Kind.RequiresAssets() {
		return m.ValidateAssets()
	}
	return nil
}

// ValidateAssets rejects an empty assets list and any asset row with fewer
// than two elements.
func (m *Manifest) ValidateAssets() error {
	if len(m.Package.Assets) == 0 {
		return errdefs.Newf(errdefs.ErrInvalidParameter,
			"Assets are required for '%s' package type", m.Content.Kind)
	}
	for index, asset := range m.Package.Assets {
		if len(asset) < 2 {
			return errdefs.Newf(errdefs.ErrInvalidParameter,
				"package.assets[%d] is invalid. Expected format: "+
					`["relative source path", "absolute destination path", optional file permissions]. `+
					`E.g. ["files/file.sh", "/usr/local/bin/renamed_file.sh", 755] or ["files/file.sh", "/usr/local/bin/"]`,
				index)
		}
	}
	return nil
}

func isNilDetail(detail any) bool {
	switch v := detail.(type) {
	case *VirtualMachine:
		return v == nil
	case *Feature:
		return v == nil
	case *Condition:
		return v == nil
	case *Inject:
		return v == nil
	case *Event:
		return v == nil
	case *Malware:
		return v == nil
	case *Exercise:
		return v == nil
	case *Other:
		return v == nil
	}
	return detail == nil
}
