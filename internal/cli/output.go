package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/leafpkg/leaf/pkg/env"
	"github.com/leafpkg/leaf/pkg/identifier"
)

// printResult renders v as JSON when --json was passed, otherwise calls
// text for the human-readable rendering.
func printResult(v any, text func()) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	text()
}

func printIdentifiers(label string, ids []identifier.Identifier) {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	printResult(strs, func() {
		if len(strs) == 0 {
			fmt.Printf("%s: none\n", label)
			return
		}
		fmt.Printf("%s:\n", label)
		for _, s := range strs {
			fmt.Printf("  %s\n", s)
		}
	})
}

// composeEnvironment builds the builtin + process-environment layers
// (spec.md §4.2's fixed composition order, minus the workspace/profile
// layers that only apply to workspace-scoped commands).
func composeEnvironment(workspace, profile string) *env.Environment {
	return env.Build(
		eng.BuiltinLayer(workspace, profile),
		processEnvLayer(),
	)
}

func processEnvLayer() env.Layer {
	m := map[string]string{}
	for _, kv := range os.Environ() {
		for i := range kv {
			if kv[i] == '=' {
				m[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env.MapLayer("user", m)
}
