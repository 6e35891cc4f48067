// internal/tools/types.go
package tools

import (
	"context"
	"time"
)

// Tool defines the interface that all tools must implement
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// Execute runs the tool with the given parameters
	Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error)

	// External returns true if this tool calls out of process (LLM, TTS,
	// network lookups). External tools can be disabled by resource limits.
	External() bool
}

// ToolResult contains the outcome of a tool execution
type ToolResult struct {
	Success  bool                   `json:"success"`
	Output   string                 `json:"output"`
	Error    string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// BackoffKind selects the inter-attempt delay formula.
type BackoffKind string

const (
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy bounds how a failing step is retried.
type RetryPolicy struct {
	MaxRetries int         `json:"max_retries"`
	Backoff    BackoffKind `json:"backoff"`
}

// ToolChainStep is one node of a decision's execution plan. Dependencies
// form a DAG over step ids within the same chain.
type ToolChainStep struct {
	StepID       string                 `json:"step_id"`
	ToolName     string                 `json:"tool_name"`
	Input        map[string]interface{} `json:"input"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Timeout      time.Duration          `json:"timeout"`
	Retry        RetryPolicy            `json:"retry"`
	FallbackTool string                 `json:"fallback_tool,omitempty"`
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	StepID       string        `json:"step_id"`
	ToolName     string        `json:"tool_name"`
	Success      bool          `json:"success"`
	Output       string        `json:"output,omitempty"`
	Error        string        `json:"error,omitempty"`
	Attempts     int           `json:"attempts"`
	UsedFallback bool          `json:"used_fallback"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// ChainResult aggregates one chain execution. Never mutated after the chain
// completes; partial success is a valid, reportable outcome.
type ChainResult struct {
	Success     bool                   `json:"success"`
	SuccessRate float64                `json:"success_rate"`
	Steps       map[string]*StepResult `json:"steps"`
	Duration    time.Duration          `json:"duration"`
}

// Bundled tool names.
const (
	ToolNameAdviceLLM    = "advice_llm"
	ToolNameTrackerStats = "tracker_stats"
	ToolNameTTSQueue     = "tts_queue"
	ToolNamePositioning  = "positioning"
	ToolNameEconomy      = "economy"
)
