// Package versioning implements the semantic-version ordering rules that
// gate uploads and drive "latest matching a requirement" queries.
package versioning

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/rangekit/depot/pkg/errdefs"
)

// Parse parses a version string per Semantic Versioning 2.0.0.
func Parse(version string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(version)
	if err != nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid version %q: %s", version, err)
	}
	return v, nil
}

// Latest returns the greatest version of the set by SemVer order. The
// boolean is false when the set is empty.
func Latest(versions []string) (string, bool, error) {
	parsed, err := parseAll(versions)
	if err != nil {
		return "", false, err
	}
	if len(parsed) == 0 {
		return "", false, nil
	}
	sort.Sort(semver.Collection(parsed))
	return parsed[len(parsed)-1].Original(), true, nil
}

// IsStrictlyGreater checks the candidate against every existing version.
// It returns ("", nil) when the candidate is strictly greater than all of
// them, and otherwise the current greatest version, which the caller
// reports as the conflicting one.
func IsStrictlyGreater(candidate string, existing []string) (string, error) {
	cv, err := Parse(candidate)
	if err != nil {
		return "", err
	}
	latest, ok, err := Latest(existing)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	lv, err := Parse(latest)
	if err != nil {
		return "", err
	}
	if cv.GreaterThan(lv) {
		return "", nil
	}
	return latest, nil
}

// MatchRequirement returns the greatest version of the set satisfying the
// requirement expression (`*`, `^1.2`, `>=2`, ...). The boolean is false
// when nothing matches.
func MatchRequirement(versions []string, requirement string) (string, bool, error) {
	constraint, err := semver.NewConstraint(requirement)
	if err != nil {
		return "", false, errdefs.Newf(errdefs.ErrInvalidParameter,
			"invalid version requirement %q: %s", requirement, err)
	}
	parsed, err := parseAll(versions)
	if err != nil {
		return "", false, err
	}
	matching := parsed[:0]
	for _, v := range parsed {
		if constraint.Check(v) {
			matching = append(matching, v)
		}
	}
	if len(matching) == 0 {
		return "", false, nil
	}
	sort.Sort(semver.Collection(matching))
	return matching[len(matching)-1].Original(), true, nil
}

func parseAll(versions []string) ([]*semver.Version, error) {
	parsed := make([]*semver.Version, 0, len(versions))
	for _, raw := range versions {
		v, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, v)
	}
	return parsed, nil
}
