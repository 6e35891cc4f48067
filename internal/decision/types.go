// internal/decision/types.go
package decision

import (
	"time"

	"fragcoach/internal/gamestate"
	"fragcoach/internal/tools"
)

// Priority orders decisions for execution.
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityHigh      Priority = "high"
	PriorityMedium    Priority = "medium"
	PriorityLow       Priority = "low"
	PriorityDeferred  Priority = "deferred"
)

// Rank maps a priority to a sortable integer; lower sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityImmediate:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	case PriorityDeferred:
		return 4
	default:
		return 5
	}
}

// ResourceLimits caps what one decision cycle may consume.
type ResourceLimits struct {
	MaxToolCalls           int           `json:"max_tool_calls"`
	MaxProcessingTime      time.Duration `json:"max_processing_time"`
	MaxConcurrentDecisions int           `json:"max_concurrent_decisions"`
	AllowExternalCalls     bool          `json:"allow_external_calls"`
}

// Objective is an active coaching objective influencing decision confidence.
type Objective struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// Context is the ephemeral input of one decision cycle. Built fresh each
// cycle; never retained.
type Context struct {
	Snapshot    *gamestate.GameStateSnapshot
	Recent      []*gamestate.GameStateSnapshot
	Patterns    []string
	Memories    []string
	Objectives  []Objective
	Limits      ResourceLimits
	Personality string
}

// AIDecision is one planned intervention. Created by the engine, consumed
// exactly once by the tool executor, then archived.
type AIDecision struct {
	ID              string                 `json:"id"`
	Priority        Priority               `json:"priority"`
	Rationale       string                 `json:"rationale"`
	Confidence      float64                `json:"confidence"`
	ToolChain       []tools.ToolChainStep  `json:"tool_chain"`
	ExpectedOutcome string                 `json:"expected_outcome"`
	FallbackPlan    string                 `json:"fallback_plan,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// StepCount returns the number of planned tool steps.
func (d *AIDecision) StepCount() int {
	return len(d.ToolChain)
}
