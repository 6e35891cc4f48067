// internal/decision/optimizer.go
package decision

import (
	"encoding/json"
	"fmt"
)

// OptimizeToolChains collapses steps with identical (toolName, input)
// signatures issued by different decisions within the same cycle. Tools can
// have side effects (text-to-speech in particular), so duplicate suppression
// is a correctness requirement, not a performance tweak. Returns the number
// of steps removed.
func OptimizeToolChains(decisions []*AIDecision) int {
	seen := make(map[string]bool)
	removed := 0

	for _, d := range decisions {
		kept := d.ToolChain[:0]
		dropped := make(map[string]bool)
		for _, step := range d.ToolChain {
			sig := stepSignature(step.ToolName, step.Input)
			if seen[sig] {
				dropped[step.StepID] = true
				removed++
				continue
			}
			seen[sig] = true
			kept = append(kept, step)
		}
		if len(dropped) == 0 {
			d.ToolChain = kept
			continue
		}
		// Rewire dependencies on removed steps: the work already happens
		// earlier in the cycle, so the dependency is considered satisfied.
		for i := range kept {
			deps := kept[i].Dependencies[:0]
			for _, dep := range kept[i].Dependencies {
				if !dropped[dep] {
					deps = append(deps, dep)
				}
			}
			kept[i].Dependencies = deps
		}
		d.ToolChain = kept
	}

	return removed
}

// stepSignature canonicalizes a step's identity. JSON marshaling sorts map
// keys, so logically equal inputs produce equal signatures.
func stepSignature(toolName string, input map[string]interface{}) string {
	raw, err := json.Marshal(input)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", input))
	}
	return toolName + "|" + string(raw)
}
