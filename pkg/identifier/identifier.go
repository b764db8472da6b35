// Package identifier implements leaf's PackageIdentifier: the (name,
// version) pair used to address manifests, installed packages and store
// directories, plus the component-wise version ordering defined in
// spec.md §3.
package identifier

import (
	"regexp"
	"strings"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// LatestVersion is the reserved query-only version string. It must never
// appear in a persisted manifest or index.
const LatestVersion = "latest"

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][-a-zA-Z0-9]*$`)

// Identifier is a PackageIdentifier: name_version.
type Identifier struct {
	Name    string
	Version string
}

// New validates and constructs an Identifier from its parts.
func New(name, version string) (Identifier, error) {
	if !namePattern.MatchString(name) {
		return Identifier{}, lerr.New(lerr.KindInvalidInput, "invalid package name: "+name)
	}
	if version == LatestVersion {
		return Identifier{}, lerr.New(lerr.KindInvalidInput, "version \"latest\" is not a valid persisted version")
	}
	if version == "" {
		return Identifier{}, lerr.New(lerr.KindInvalidInput, "package version cannot be empty")
	}
	return Identifier{Name: name, Version: version}, nil
}

// NewQuery is like New but allows the reserved "latest" version, for use
// only as a resolver input, never as a persisted value.
func NewQuery(name, version string) (Identifier, error) {
	if !namePattern.MatchString(name) {
		return Identifier{}, lerr.New(lerr.KindInvalidInput, "invalid package name: "+name)
	}
	if version == "" {
		version = LatestVersion
	}
	return Identifier{Name: name, Version: version}, nil
}

// Parse parses "name_version" into an Identifier. Used for persisted
// identifiers only — "latest" is rejected.
func Parse(s string) (Identifier, error) {
	name, version, err := splitNameVersion(s)
	if err != nil {
		return Identifier{}, err
	}
	return New(name, version)
}

// ParseQuery parses "name" or "name_version" for resolver input, where a
// bare name (or an explicit "_latest" suffix) means "highest available".
func ParseQuery(s string) (Identifier, error) {
	if !strings.Contains(s, "_") {
		return NewQuery(s, "")
	}
	name, version, err := splitNameVersion(s)
	if err != nil {
		return Identifier{}, err
	}
	return NewQuery(name, version)
}

func splitNameVersion(s string) (name, version string, err error) {
	idx := strings.Index(s, "_")
	if idx < 0 {
		return "", "", lerr.New(lerr.KindInvalidInput, "malformed identifier (expected name_version): "+s)
	}
	return s[:idx], s[idx+1:], nil
}

// IsQuery reports whether this identifier's version is the "latest" query.
func (id Identifier) IsQuery() bool {
	return id.Version == LatestVersion
}

// String renders "name_version".
func (id Identifier) String() string {
	return id.Name + "_" + id.Version
}

// Compare orders identifiers by name, then by version (spec.md §4.5
// tie-break: lexicographically by name then by version descending is
// applied by callers that need "highest wins"; Compare itself is a plain
// ascending total order used for map keys and deterministic sorting).
func (id Identifier) Compare(other Identifier) int {
	if id.Name != other.Name {
		if id.Name < other.Name {
			return -1
		}
		return 1
	}
	return CompareVersions(id.Version, other.Version)
}

// run is a maximal span of either digits or non-digits within a version
// string, used by CompareVersions.
type run struct {
	text    string
	numeric bool
}

func splitRuns(v string) []run {
	var runs []run
	var cur strings.Builder
	var curNumeric bool
	for i, r := range v {
		numeric := r >= '0' && r <= '9'
		if i == 0 {
			curNumeric = numeric
			cur.WriteRune(r)
			continue
		}
		if numeric == curNumeric {
			cur.WriteRune(r)
			continue
		}
		runs = append(runs, run{text: cur.String(), numeric: curNumeric})
		cur.Reset()
		cur.WriteRune(r)
		curNumeric = numeric
	}
	if cur.Len() > 0 {
		runs = append(runs, run{text: cur.String(), numeric: curNumeric})
	}
	return runs
}

// CompareVersions implements spec.md §3's version ordering: split into
// maximal runs of digits and non-digits; numeric runs compare as integers,
// non-numeric runs as byte strings; a shorter prefix loses ties.
func CompareVersions(a, b string) int {
	ra, rb := splitRuns(a), splitRuns(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	for i := 0; i < n; i++ {
		if c := compareRun(ra[i], rb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(ra) < len(rb):
		return -1
	case len(ra) > len(rb):
		return 1
	default:
		return 0
	}
}

func compareRun(a, b run) int {
	if a.numeric && b.numeric {
		na := strings.TrimLeft(a.text, "0")
		nb := strings.TrimLeft(b.text, "0")
		if len(na) != len(nb) {
			if len(na) < len(nb) {
				return -1
			}
			return 1
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
		return 0
	}
	// A numeric run and a non-numeric run, or two non-numeric runs, both
	// fall back to byte-string comparison (spec.md §3: "non-numeric runs
	// compare as byte strings" — mixed-type runs at the same position only
	// arise when one version has a letter where the other has a digit at
	// that position, which is itself ordered by byte value).
	if a.text == b.text {
		return 0
	}
	if a.text < b.text {
		return -1
	}
	return 1
}
