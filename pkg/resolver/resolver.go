// Package resolver implements leaf's dependency resolution (spec.md
// §4.5): DFS traversal of conditional edges over a composed
// environment, topological ordering with cycle detection, and the
// install/uninstall/prereq/latest planners built on top of it.
//
// Written with explicit error types and small struct-returning
// functions, shaped around a deterministic topological walk over a
// versioned identifier graph.
package resolver

import (
	"sort"

	"github.com/leafpkg/leaf/pkg/condition"
	"github.com/leafpkg/leaf/pkg/identifier"
	"github.com/leafpkg/leaf/pkg/manifest"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// Source maps an identifier's canonical string form ("name_version") to
// its manifest. Both the available catalogue and the installed set can
// be adapted to this shape.
type Source map[string]*manifest.Manifest

// NewSourceFromAvailable builds a Source from a fetched catalogue.
func NewSourceFromAvailable(catalogue map[string]manifest.AvailablePackage) Source {
	s := make(Source, len(catalogue))
	for k, v := range catalogue {
		s[k] = v.Manifest
	}
	return s
}

// NewSourceFromInstalled builds a Source from the installed set.
func NewSourceFromInstalled(installed map[string]manifest.InstalledPackage) Source {
	s := make(Source, len(installed))
	for k, v := range installed {
		s[k] = v.Manifest
	}
	return s
}

// Union merges two sources, preferring entries from the first wherever
// both define the same identifier.
func Union(primary, secondary Source) Source {
	out := make(Source, len(primary)+len(secondary))
	for k, v := range secondary {
		out[k] = v
	}
	for k, v := range primary {
		out[k] = v
	}
	return out
}

// versionsOf returns every version of name present in the source,
// sorted ascending.
func versionsOf(source Source, name string) []identifier.Identifier {
	var out []identifier.Identifier
	for _, m := range source {
		if m.Identifier.Name == name {
			out = append(out, m.Identifier)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return identifier.CompareVersions(out[i].Version, out[j].Version) < 0
	})
	return out
}

// ResolveLatest resolves an unversioned (or "latest") request to the
// highest version present in source (spec.md §4.5 step 1). A versioned
// request is returned unchanged provided it exists in source.
func ResolveLatest(req identifier.Identifier, source Source) (identifier.Identifier, error) {
	if !req.IsQuery() {
		if _, ok := source[req.String()]; !ok {
			return identifier.Identifier{}, lerr.New(lerr.KindNotFound, "unknown package: "+req.String())
		}
		return req, nil
	}
	versions := versionsOf(source, req.Name)
	if len(versions) == 0 {
		return identifier.Identifier{}, lerr.New(lerr.KindNotFound, "no versions available for package: "+req.Name)
	}
	return versions[len(versions)-1], nil
}

// graph is the result of a DFS traversal: the set of visited nodes plus
// their in-graph dependency edges, ready for topological ordering.
type graph struct {
	order []string            // DFS discovery order, deepest-first per branch
	edges map[string][]string // node -> its in-graph dependencies
}

// traverse performs a DFS from each seed over source's depends edges,
// filtering edges by the composed environment. Unknown identifiers are
// fatal unless ignoreUnknown.
func traverse(seeds []identifier.Identifier, source Source, env condition.Lookup, ignoreUnknown bool) (*graph, error) {
	g := &graph{edges: map[string][]string{}}
	visiting := map[string]bool{}
	visited := map[string]bool{}

	var visit func(id identifier.Identifier) error
	visit = func(id identifier.Identifier) error {
		key := id.String()
		if visited[key] {
			return nil
		}
		if visiting[key] {
			return lerr.New(lerr.KindCycle, "dependency cycle detected at "+key)
		}
		m, ok := source[key]
		if !ok {
			if ignoreUnknown {
				return nil
			}
			return lerr.New(lerr.KindNotFound, "unknown package in dependency graph: "+key)
		}
		visiting[key] = true

		var deps []string
		for _, dep := range m.Depends {
			if !dep.Matches(env) {
				continue
			}
			depID, err := ResolveLatest(dep.ID, source)
			if err != nil {
				if ignoreUnknown {
					continue
				}
				return err
			}
			depKey := depID.String()
			if err := visit(depID); err != nil {
				return err
			}
			deps = append(deps, depKey)
		}
		g.edges[key] = deps

		visiting[key] = false
		visited[key] = true
		g.order = append(g.order, key)
		return nil
	}

	for _, seed := range seeds {
		if err := visit(seed); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// topoSort repeatedly emits nodes all of whose in-graph dependencies
// are already emitted (spec.md §4.5 step 3). Absence of progress in a
// pass is a Cycle error; ties within a pass are broken by identifier
// string for determinism.
func topoSort(g *graph) ([]string, error) {
	nodes := make([]string, 0, len(g.edges))
	for k := range g.edges {
		nodes = append(nodes, k)
	}
	sort.Strings(nodes)

	emitted := map[string]bool{}
	var out []string

	for len(out) < len(nodes) {
		progressed := false
		for _, n := range nodes {
			if emitted[n] {
				continue
			}
			ready := true
			for _, dep := range g.edges[n] {
				if !emitted[dep] {
					ready = false
					break
				}
			}
			if ready {
				emitted[n] = true
				out = append(out, n)
				progressed = true
			}
		}
		if !progressed {
			return nil, lerr.New(lerr.KindCycle, "dependency cycle: unable to order remaining packages")
		}
	}
	return out, nil
}

// InstallPlan computes the ordered list of identifiers that must be
// installed to satisfy seeds, minus whatever is already installed
// (spec.md §4.5's install_plan). Unversioned seeds resolve against
// available before traversal.
func InstallPlan(seeds []identifier.Identifier, available Source, env condition.Lookup, installed map[string]bool) ([]identifier.Identifier, error) {
	resolvedSeeds := make([]identifier.Identifier, 0, len(seeds))
	for _, s := range seeds {
		r, err := ResolveLatest(s, available)
		if err != nil {
			return nil, err
		}
		resolvedSeeds = append(resolvedSeeds, r)
	}

	g, err := traverse(resolvedSeeds, available, env, false)
	if err != nil {
		return nil, err
	}
	order, err := topoSort(g)
	if err != nil {
		return nil, err
	}

	out := make([]identifier.Identifier, 0, len(order))
	for _, key := range order {
		if installed[key] {
			continue
		}
		out = append(out, available[key].Identifier)
	}
	return out, nil
}

// UninstallPlan computes the reverse-ordered list of identifiers to
// remove for seeds, excluding anything still required by an installed
// package outside the seed closure (spec.md §4.5's uninstall_plan).
func UninstallPlan(seeds []identifier.Identifier, installed Source, env condition.Lookup) ([]identifier.Identifier, error) {
	g, err := traverse(seeds, installed, env, true)
	if err != nil {
		return nil, err
	}
	order, err := topoSort(g)
	if err != nil {
		return nil, err
	}

	closure := map[string]bool{}
	for _, key := range order {
		closure[key] = true
	}

	stillNeeded := map[string]bool{}
	for key, m := range installed {
		if closure[key] {
			continue
		}
		for _, dep := range m.Depends {
			if closure[dep.ID.String()] {
				stillNeeded[dep.ID.String()] = true
			}
		}
		for _, req := range m.Requires {
			if closure[req.String()] {
				stillNeeded[req.String()] = true
			}
		}
	}

	// reverse mode
	reversed := make([]string, len(order))
	for i, key := range order {
		reversed[len(order)-1-i] = key
	}

	out := make([]identifier.Identifier, 0, len(reversed))
	for _, key := range reversed {
		if stillNeeded[key] {
			continue
		}
		out = append(out, installed[key].Identifier)
	}
	return out, nil
}

// PrereqPlan collects the distinct `requires` of an install plan,
// sorted by identifier (spec.md §4.5's prereq_plan).
func PrereqPlan(plan []identifier.Identifier, source Source) []identifier.Identifier {
	seen := map[string]identifier.Identifier{}
	for _, id := range plan {
		m, ok := source[id.String()]
		if !ok {
			continue
		}
		for _, req := range m.Requires {
			seen[req.String()] = req
		}
	}
	out := make([]identifier.Identifier, 0, len(seen))
	for _, id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Compare(out[j]) < 0
	})
	return out
}
