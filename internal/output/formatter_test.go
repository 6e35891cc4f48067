// internal/output/formatter_test.go
package output

import (
	"fmt"
	"testing"
	"time"

	"fragcoach/internal/decision"
	"fragcoach/internal/tools"
)

func chainResult(success bool, rate float64, steps map[string]*tools.StepResult) *tools.ChainResult {
	return &tools.ChainResult{Success: success, SuccessRate: rate, Steps: steps, Duration: 50 * time.Millisecond}
}

func TestFormat_ImmediateDecision(t *testing.T) {
	d := &decision.AIDecision{
		ID:       "d1",
		Priority: decision.PriorityImmediate,
		ToolChain: []tools.ToolChainStep{
			{StepID: "advice", ToolName: tools.ToolNameAdviceLLM},
			{StepID: "speak", ToolName: tools.ToolNameTTSQueue, Dependencies: []string{"advice"}},
		},
	}
	res := chainResult(true, 1.0, map[string]*tools.StepResult{
		"advice": {StepID: "advice", Success: true, Output: "Fall back behind cover and wait for the trade"},
		"speak":  {StepID: "speak", Success: true},
	})

	out, err := NewFormatter().Format(d, res, "supportive")
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if !out.Timing.Immediate || out.Timing.When != "now" {
		t.Errorf("Expected immediate timing, got %+v", out.Timing)
	}
	if out.Type != TypeTacticalAdvice {
		t.Errorf("Expected tactical_advice, got %s", out.Type)
	}
	if out.Message != "Fall back behind cover and wait for the trade" {
		t.Errorf("Unexpected message: %q", out.Message)
	}
	if len(out.ActionItems) != 0 {
		t.Errorf("Empty step outputs should not become action items: %v", out.ActionItems)
	}
	if out.Personalization != "supportive" {
		t.Errorf("Personalization not carried: %q", out.Personalization)
	}
	if out.DecisionID != "d1" {
		t.Errorf("DecisionID not carried: %q", out.DecisionID)
	}
}

func TestFormat_BuyAdviceNotImmediate(t *testing.T) {
	d := &decision.AIDecision{
		ID:       "d2",
		Priority: decision.PriorityHigh,
		ToolChain: []tools.ToolChainStep{
			{StepID: "buy", ToolName: tools.ToolNameEconomy},
		},
	}
	res := chainResult(true, 1.0, map[string]*tools.StepResult{
		"buy": {StepID: "buy", Success: true, Output: "Full buy: rifle, armor and utility"},
	})

	out, err := NewFormatter().Format(d, res, "analytical")
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if out.Timing.Immediate {
		t.Error("High priority should not be immediate")
	}
	if out.Type != TypeBuyAdvice {
		t.Errorf("Expected buy_advice, got %s", out.Type)
	}
}

func TestFormat_PartialChainUsesSuccessfulSteps(t *testing.T) {
	d := &decision.AIDecision{
		ID:       "d3",
		Priority: decision.PriorityMedium,
		ToolChain: []tools.ToolChainStep{
			{StepID: "advice", ToolName: tools.ToolNamePositioning},
			{StepID: "stats", ToolName: tools.ToolNameTrackerStats},
		},
	}
	res := chainResult(false, 0.5, map[string]*tools.StepResult{
		"advice": {StepID: "advice", Success: false, Error: "timeout"},
		"stats":  {StepID: "stats", Success: true, Output: "K/D 0.8 over last 5 matches"},
	})

	out, err := NewFormatter().Format(d, res, "direct")
	if err != nil {
		t.Fatalf("Partial success should still format: %v", err)
	}
	if out.Message != "K/D 0.8 over last 5 matches" {
		t.Errorf("Unexpected message: %q", out.Message)
	}
	if out.Type != TypePatternReview {
		t.Errorf("Expected pattern_review, got %s", out.Type)
	}
}

func TestFormat_NothingSucceededIsError(t *testing.T) {
	d := &decision.AIDecision{
		ID:       "d4",
		Priority: decision.PriorityMedium,
		ToolChain: []tools.ToolChainStep{
			{StepID: "advice", ToolName: tools.ToolNamePositioning},
		},
	}
	res := chainResult(false, 0, map[string]*tools.StepResult{
		"advice": {StepID: "advice", Success: false, Error: "timeout"},
	})

	if _, err := NewFormatter().Format(d, res, ""); err == nil {
		t.Error("Expected an error when no step produced output")
	}
}

func TestFormat_ExtraOutputsBecomeActionItems(t *testing.T) {
	d := &decision.AIDecision{
		ID:       "d5",
		Priority: decision.PriorityMedium,
		ToolChain: []tools.ToolChainStep{
			{StepID: "advice", ToolName: tools.ToolNamePositioning},
			{StepID: "stats", ToolName: tools.ToolNameTrackerStats},
		},
	}
	res := chainResult(true, 1.0, map[string]*tools.StepResult{
		"advice": {StepID: "advice", Success: true, Output: "Hold the crossfire angle with your teammate"},
		"stats":  {StepID: "stats", Success: true, Output: "Headshot rate trending down"},
	})

	out, err := NewFormatter().Format(d, res, "")
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if out.Message != "Hold the crossfire angle with your teammate" {
		t.Errorf("Plan order should pick the first step as message, got %q", out.Message)
	}
	if len(out.ActionItems) != 1 || out.ActionItems[0] != "Headshot rate trending down" {
		t.Errorf("Unexpected action items: %v", out.ActionItems)
	}
}

type failingDeliverer struct{ calls int }

func (f *failingDeliverer) Deliver(*CoachingOutput) error {
	f.calls++
	return fmt.Errorf("overlay unreachable")
}

type countingDeliverer struct{ calls int }

func (c *countingDeliverer) Deliver(*CoachingOutput) error {
	c.calls++
	return nil
}

func TestDispatch_FailureDoesNotStopFanOut(t *testing.T) {
	bad := &failingDeliverer{}
	good := &countingDeliverer{}
	disp := NewDispatcher(bad, good)

	disp.Dispatch(&CoachingOutput{ID: "o1", Type: TypeGeneral, Title: "t", Message: "m"})

	if bad.calls != 1 || good.calls != 1 {
		t.Errorf("Expected both deliverers called once, got %d and %d", bad.calls, good.calls)
	}
}
