// internal/decision/engine.go
package decision

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"fragcoach/internal/gamestate"
	"fragcoach/internal/tools"
)

// Engine turns a decision context into ranked, executable decisions.
type Engine struct {
	hasTool func(string) bool

	defaultTimeout time.Duration
	defaultRetry   tools.RetryPolicy
}

// NewEngine creates a decision engine. hasTool guards generated chains
// against referencing tools the registry does not carry.
func NewEngine(hasTool func(string) bool) *Engine {
	return &Engine{
		hasTool:        hasTool,
		defaultTimeout: 4 * time.Second,
		defaultRetry:   tools.RetryPolicy{MaxRetries: 1, Backoff: tools.BackoffLinear},
	}
}

// AnalyzeContext produces zero or more decisions for the current cycle,
// ranked by priority then confidence, trimmed to the tool-call budget, with
// duplicate side-effecting steps collapsed across decisions.
func (e *Engine) AnalyzeContext(ctx context.Context, dc *Context) ([]*AIDecision, error) {
	if dc == nil || dc.Snapshot == nil {
		return nil, fmt.Errorf("decision context has no snapshot")
	}

	var decisions []*AIDecision
	if d := e.criticalSituationDecision(dc); d != nil {
		decisions = append(decisions, d)
	}
	if d := e.buyAdviceDecision(dc); d != nil {
		decisions = append(decisions, d)
	}
	if d := e.patternReviewDecision(dc); d != nil {
		decisions = append(decisions, d)
	}

	// Validate every generated chain before anything else sees it.
	valid := decisions[:0]
	for _, d := range decisions {
		if err := tools.ValidateChain(d.ToolChain, e.hasTool); err != nil {
			log.Printf("[DecisionEngine] Dropping decision %s: %v", d.ID, err)
			continue
		}
		valid = append(valid, d)
	}
	decisions = valid

	Rank(decisions)
	decisions = e.applyBudget(decisions, dc.Limits.MaxToolCalls)
	collapsed := OptimizeToolChains(decisions)
	if collapsed > 0 {
		log.Printf("[DecisionEngine] Collapsed %d duplicate tool step(s) across decisions", collapsed)
	}

	return decisions, nil
}

// Rank sorts decisions by priority, ties broken by confidence descending.
func Rank(decisions []*AIDecision) {
	sort.SliceStable(decisions, func(i, j int) bool {
		if decisions[i].Priority.Rank() != decisions[j].Priority.Rank() {
			return decisions[i].Priority.Rank() < decisions[j].Priority.Rank()
		}
		return decisions[i].Confidence > decisions[j].Confidence
	})
}

// applyBudget drops lowest-ranked decisions until total planned steps fit the
// budget. Resource-limit violations are logged, never fatal.
func (e *Engine) applyBudget(decisions []*AIDecision, maxToolCalls int) []*AIDecision {
	if maxToolCalls <= 0 {
		return decisions
	}
	total := 0
	kept := decisions[:0]
	for _, d := range decisions {
		if total+d.StepCount() > maxToolCalls {
			log.Printf("[DecisionEngine] Dropping decision %s (%s): tool-call budget %d exhausted",
				d.ID, d.Rationale, maxToolCalls)
			continue
		}
		total += d.StepCount()
		kept = append(kept, d)
	}
	return kept
}

func (e *Engine) criticalSituationDecision(dc *Context) *AIDecision {
	snap := dc.Snapshot
	if snap.Context != gamestate.ContextCriticalSituation {
		return nil
	}

	situation := describeSituation(snap, dc.Patterns)
	adviceStep := tools.ToolChainStep{
		StepID:  "advice",
		Input:   map[string]interface{}{"situation": situation, "personality": dc.Personality},
		Timeout: e.defaultTimeout,
		Retry:   e.defaultRetry,
	}
	if dc.Limits.AllowExternalCalls && e.hasTool(tools.ToolNameAdviceLLM) {
		adviceStep.ToolName = tools.ToolNameAdviceLLM
		adviceStep.FallbackTool = tools.ToolNamePositioning
	} else {
		adviceStep.ToolName = tools.ToolNamePositioning
	}

	chain := []tools.ToolChainStep{adviceStep}
	if dc.Limits.AllowExternalCalls && e.hasTool(tools.ToolNameTTSQueue) {
		chain = append(chain, tools.ToolChainStep{
			StepID:       "speak",
			ToolName:     tools.ToolNameTTSQueue,
			Input:        map[string]interface{}{"text": situation, "priority": "immediate"},
			Dependencies: []string{"advice"},
			Timeout:      2 * time.Second,
			Retry:        tools.RetryPolicy{MaxRetries: 0},
		})
	}

	return &AIDecision{
		ID:              uuid.New().String(),
		Priority:        PriorityImmediate,
		Rationale:       "critical situation detected",
		Confidence:      highestFactorRelevance(snap),
		ToolChain:       chain,
		ExpectedOutcome: "player survives the engagement or disengages",
		FallbackPlan:    "heuristic positioning advice without voice delivery",
		Metadata: map[string]interface{}{
			"context":     string(snap.Context),
			"sequence_id": snap.SequenceID,
		},
		CreatedAt: time.Now(),
	}
}

func (e *Engine) buyAdviceDecision(dc *Context) *AIDecision {
	snap := dc.Snapshot
	if snap.Context != gamestate.ContextRoundStart {
		return nil
	}
	hasEco := false
	for _, f := range snap.Factors {
		if f.Kind == gamestate.FactorEconomic {
			hasEco = true
			break
		}
	}
	if !hasEco && snap.Economy.CanFullBuy {
		// Full buy with no economic pressure needs no coaching.
		return nil
	}

	return &AIDecision{
		ID:         uuid.New().String(),
		Priority:   PriorityHigh,
		Rationale:  "buy round guidance",
		Confidence: 0.75,
		ToolChain: []tools.ToolChainStep{
			{
				StepID:   "buy",
				ToolName: tools.ToolNameEconomy,
				Input:    map[string]interface{}{"money": snap.Economy.Money},
				Timeout:  e.defaultTimeout,
				Retry:    e.defaultRetry,
			},
		},
		ExpectedOutcome: "player buys appropriately for team economy",
		Metadata: map[string]interface{}{
			"context":     string(snap.Context),
			"sequence_id": snap.SequenceID,
		},
		CreatedAt: time.Now(),
	}
}

func (e *Engine) patternReviewDecision(dc *Context) *AIDecision {
	if len(dc.Patterns) == 0 {
		return nil
	}
	if dc.Snapshot.Context == gamestate.ContextCriticalSituation {
		// The immediate decision already covers this frame.
		return nil
	}

	situation := describeSituation(dc.Snapshot, dc.Patterns)
	chain := []tools.ToolChainStep{
		{
			StepID:   "advice",
			ToolName: tools.ToolNamePositioning,
			Input:    map[string]interface{}{"situation": situation},
			Timeout:  e.defaultTimeout,
			Retry:    e.defaultRetry,
		},
	}
	if dc.Limits.AllowExternalCalls && e.hasTool(tools.ToolNameTrackerStats) && dc.Snapshot.Player.SteamID != "" {
		chain = append(chain, tools.ToolChainStep{
			StepID:   "stats",
			ToolName: tools.ToolNameTrackerStats,
			Input:    map[string]interface{}{"player_id": dc.Snapshot.Player.SteamID},
			Timeout:  e.defaultTimeout,
			Retry:    tools.RetryPolicy{MaxRetries: 1, Backoff: tools.BackoffExponential},
		})
	}

	return &AIDecision{
		ID:              uuid.New().String(),
		Priority:        PriorityMedium,
		Rationale:       "recurring pattern: " + strings.Join(dc.Patterns, ", "),
		Confidence:      0.6,
		ToolChain:       chain,
		ExpectedOutcome: "player breaks the negative pattern",
		Metadata: map[string]interface{}{
			"patterns":    dc.Patterns,
			"sequence_id": dc.Snapshot.SequenceID,
		},
		CreatedAt: time.Now(),
	}
}

func describeSituation(snap *gamestate.GameStateSnapshot, patterns []string) string {
	var parts []string
	for _, f := range snap.Factors {
		parts = append(parts, f.Description)
	}
	parts = append(parts, patterns...)
	if len(parts) == 0 {
		parts = append(parts, string(snap.Context))
	}
	return fmt.Sprintf("%s on %s round %d: %s",
		snap.Player.Name, snap.Map.Name, snap.Map.Round, strings.Join(parts, "; "))
}

func highestFactorRelevance(snap *gamestate.GameStateSnapshot) float64 {
	best := 0.5
	for _, f := range snap.Factors {
		if f.Severity == gamestate.SeverityCritical && f.Relevance > best {
			best = f.Relevance
		}
	}
	return best
}
