// internal/tools/heuristics.go
package tools

import (
	"context"
	"fmt"
	"strings"
)

// The heuristic tools run in-process with no network dependency. They serve
// as fallbacks for the LLM advice tool and as cheap primary sources when
// external calls are disallowed by resource limits.

// PositioningTool gives canned positioning advice from the situation keywords.
type PositioningTool struct{}

func NewPositioningTool() *PositioningTool { return &PositioningTool{} }

func (t *PositioningTool) Name() string        { return ToolNamePositioning }
func (t *PositioningTool) Description() string { return "Rule-based positioning advice" }
func (t *PositioningTool) External() bool      { return false }

func (t *PositioningTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	situation, _ := params["situation"].(string)
	if situation == "" {
		return nil, fmt.Errorf("missing 'situation' parameter")
	}

	advice := "Hold a crossfire angle and avoid dry peeks."
	switch {
	case strings.Contains(situation, "low health"):
		advice = "Fall back to a safe angle, let teammates take first contact."
	case strings.Contains(situation, "bomb planted"):
		advice = "Play the clock, hold post-plant positions off the bomb."
	case strings.Contains(situation, "heavy damage"):
		advice = "Disengage and reposition, you lose most duels at this HP."
	case strings.Contains(situation, "loss streak"):
		advice = "Slow the round down, trade kills instead of solo plays."
	}

	return &ToolResult{Success: true, Output: advice}, nil
}

// EconomyTool gives canned buy advice from the money situation.
type EconomyTool struct{}

func NewEconomyTool() *EconomyTool { return &EconomyTool{} }

func (t *EconomyTool) Name() string        { return ToolNameEconomy }
func (t *EconomyTool) Description() string { return "Rule-based buy-round advice" }
func (t *EconomyTool) External() bool      { return false }

func (t *EconomyTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	money, ok := params["money"].(int)
	if !ok {
		if f, fok := params["money"].(float64); fok {
			money = int(f)
			ok = true
		}
	}
	if !ok {
		return nil, fmt.Errorf("missing 'money' parameter")
	}

	var advice string
	switch {
	case money >= 4700:
		advice = "Full buy: rifle, armor plus helmet, full utility."
	case money >= 2500:
		advice = "Force buy only if the team commits; otherwise save."
	default:
		advice = "Eco round: pistol only, stack a site and play for exit damage."
	}

	return &ToolResult{Success: true, Output: advice}, nil
}
