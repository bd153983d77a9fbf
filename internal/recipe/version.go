package recipe

import (
	"strings"

	"golang.org/x/mod/semver"
)

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// ValidVersion reports whether v is a semantic version, with or without a
// leading "v" and an optional "+build" suffix.
func ValidVersion(v string) bool {
	return v != "" && semver.IsValid(canonical(v))
}

// BaseVersion strips the "+build" suffix from v.
func BaseVersion(v string) string {
	if build := semver.Build(canonical(v)); build != "" {
		return strings.TrimSuffix(v, build)
	}
	if i := strings.IndexByte(v, '+'); i >= 0 {
		return v[:i]
	}
	return v
}

// VersionTag returns the version label passed to the ABI dumper: v with
// every dot replaced by an underscore.
func VersionTag(v string) string {
	return strings.ReplaceAll(v, ".", "_")
}

// CompareVersions compares two semantic versions like semver.Compare. An
// invalid version sorts before every valid one.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}
