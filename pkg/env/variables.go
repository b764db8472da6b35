package env

import (
	"os"
	"regexp"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// PackageCoord is the minimal package-coordinate surface a
// VariableResolver needs: enough to answer @{NAME}, @{DIR}, @{VERSION}
// and @{KEY:<pkg>} without pkg/env depending on pkg/manifest.
type PackageCoord struct {
	Name    string
	Version string
	Folder  string
}

// VariableResolver resolves "@{...}" package-coordinate references
// (spec.md §4.2), bound to the package a step is running for plus any
// other installed packages it may reference via "@{KEY:<pkg>}". Others
// is keyed by the referenced package's full "name_version" identifier,
// matching the "@{KEY:<name_version>}" form leaf manifests use.
type VariableResolver struct {
	Current PackageCoord
	Others  map[string]PackageCoord
}

var pkgVarPattern = regexp.MustCompile(`@\{([^}]*)\}`)

// Substitute rewrites every "@{...}" reference in s. An unresolved
// reference after substitution is fatal (spec.md §4.2/§8: "Unknown @{...}
// in step command => StepFailed before spawn").
func (r *VariableResolver) Substitute(s string) (string, error) {
	var firstErr error
	result := pkgVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		inner := match[2 : len(match)-1]
		val, err := r.resolve(inner)
		if err != nil {
			firstErr = err
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	if pkgVarPattern.MatchString(result) {
		return "", lerr.New(lerr.KindStepFailed, "unresolved @{...} reference in: "+s)
	}
	return result, nil
}

// resolve handles both "@{COORD}" (current package) and
// "@{COORD:<name_version>}" (another installed package), where COORD is
// NAME, DIR or VERSION — spec.md §4.2 names the cross-package form
// "@{KEY:<pkg>}" generically, using KEY as a placeholder for whichever
// coordinate key is used and <pkg> as the referenced package's full
// "name_version" identifier.
func (r *VariableResolver) resolve(inner string) (string, error) {
	coordName, pkgName, hasPkg := cutCoord(inner)
	coord := r.Current
	if hasPkg {
		other, ok := r.Others[pkgName]
		switch {
		case ok:
			coord = other
		case pkgName == r.Current.Name+"_"+r.Current.Version:
			coord = r.Current
		default:
			return "", lerr.New(lerr.KindNotFound, "unknown package \""+pkgName+"\" referenced in @{"+inner+"}")
		}
	}
	switch coordName {
	case "NAME":
		return coord.Name, nil
	case "DIR":
		return coord.Folder, nil
	case "VERSION":
		return coord.Version, nil
	default:
		return "", lerr.New(lerr.KindStepFailed, "unknown variable reference @{"+inner+"}")
	}
}

func cutCoord(inner string) (coord, pkgName string, hasPkg bool) {
	for i := 0; i < len(inner); i++ {
		if inner[i] == ':' {
			return inner[:i], inner[i+1:], true
		}
	}
	return inner, "", false
}

var processVarPattern = regexp.MustCompile(`#\{([^}]*)\}`)

// SubstituteProcessEnv rewrites every "#{VAR}" reference in s from the
// process environment (spec.md §4.2: used only by the releng manifest
// generator). A missing variable is fatal.
func SubstituteProcessEnv(s string) (string, error) {
	var firstErr error
	result := processVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := match[2 : len(match)-1]
		val, ok := os.LookupEnv(name)
		if !ok {
			firstErr = lerr.New(lerr.KindInvalidInput, "unresolved process variable #{"+name+"}")
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
