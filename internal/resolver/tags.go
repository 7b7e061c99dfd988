package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// TagPolicy decides which of several version tags is the latest.
type TagPolicy string

// Supported tag policies.
const (
	// TagPolicyLexical picks the greatest tag by plain string comparison, so
	// "9.0.0" outranks "10.0.0".
	TagPolicyLexical TagPolicy = "lexical"
	// TagPolicySemver orders tags as semantic versions.
	TagPolicySemver TagPolicy = "semver"
)

// ErrUnknownTagPolicy is returned for an unrecognized policy name.
var ErrUnknownTagPolicy = errors.New("unknown tag policy")

var versionTagPattern = regexp.MustCompile(`^v?\d+\.\d+\.\d+`)

// ParseTagPolicy maps a flag value to a policy. The empty string selects
// TagPolicyLexical.
func ParseTagPolicy(s string) (TagPolicy, error) {
	switch TagPolicy(s) {
	case "", TagPolicyLexical:
		return TagPolicyLexical, nil
	case TagPolicySemver:
		return TagPolicySemver, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTagPolicy, s)
	}
}

// FilterVersionTags keeps tags that start with MAJOR.MINOR.PATCH, optionally
// prefixed with "v". Order is preserved.
func FilterVersionTags(tags []string) []string {
	result := []string{}
	for _, tag := range tags {
		if versionTagPattern.MatchString(tag) {
			result = append(result, tag)
		}
	}
	return result
}

// SelectLatestTag returns the latest of the given version tags according to
// policy, and false when tags is empty.
func SelectLatestTag(tags []string, policy TagPolicy) (string, bool) {
	if len(tags) == 0 {
		return "", false
	}

	if policy == TagPolicySemver {
		var versions []*semver.Version
		for _, t := range tags {
			if v, err := semver.NewVersion(t); err == nil {
				versions = append(versions, v)
			}
		}
		if len(versions) > 0 {
			sort.Sort(semver.Collection(versions))
			return versions[len(versions)-1].Original(), true
		}
	}

	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))
	return sorted[0], true
}
