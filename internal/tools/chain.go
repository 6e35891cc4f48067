// internal/tools/chain.go
package tools

import (
	"fmt"
	"time"
)

// ValidateChain checks that a tool chain is executable: unique step ids,
// dependencies referring to steps within the same chain, no dependency
// cycles, and every named tool (including fallbacks) registered.
func ValidateChain(steps []ToolChainStep, registered func(string) bool) error {
	if len(steps) == 0 {
		return fmt.Errorf("empty tool chain")
	}

	byID := make(map[string]*ToolChainStep, len(steps))
	for i := range steps {
		s := &steps[i]
		if s.StepID == "" {
			return fmt.Errorf("step %d has no id", i)
		}
		if _, dup := byID[s.StepID]; dup {
			return fmt.Errorf("duplicate step id: %s", s.StepID)
		}
		byID[s.StepID] = s
	}

	for _, s := range steps {
		if registered != nil && !registered(s.ToolName) {
			return fmt.Errorf("step %s references unregistered tool: %s", s.StepID, s.ToolName)
		}
		if s.FallbackTool != "" && registered != nil && !registered(s.FallbackTool) {
			return fmt.Errorf("step %s references unregistered fallback tool: %s", s.StepID, s.FallbackTool)
		}
		for _, dep := range s.Dependencies {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("step %s depends on unknown step: %s", s.StepID, dep)
			}
		}
	}

	if cycleStep := findCycle(byID); cycleStep != "" {
		return fmt.Errorf("dependency cycle involving step: %s", cycleStep)
	}

	return nil
}

// findCycle runs a three-color depth-first search over the dependency edges.
// Returns the id of a step on a cycle, or "".
func findCycle(byID map[string]*ToolChainStep) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byID))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, dep := range byID[id].Dependencies {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if c := visit(dep); c != "" {
					return c
				}
			}
		}
		color[id] = black
		return ""
	}

	for id := range byID {
		if color[id] == white {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}

// BackoffDelay computes the inter-attempt delay for a retried step. The step
// timeout is the base unit: linear waits timeout*attempt, exponential waits
// timeout*2^attempt. attempt is 1-based (delay before attempt+1).
func BackoffDelay(policy RetryPolicy, timeout time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch policy.Backoff {
	case BackoffExponential:
		return timeout * time.Duration(1<<uint(attempt))
	default:
		return timeout * time.Duration(attempt)
	}
}
