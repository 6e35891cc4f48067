// internal/output/formatter.go
package output

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"fragcoach/internal/decision"
	"fragcoach/internal/tools"
)

// OutputType categorizes a coaching output for delivery consumers.
type OutputType string

const (
	TypeTacticalAdvice OutputType = "tactical_advice"
	TypeBuyAdvice      OutputType = "buy_advice"
	TypePatternReview  OutputType = "pattern_review"
	TypeGeneral        OutputType = "general"
)

// Timing tells delivery consumers when the output should reach the player.
type Timing struct {
	Immediate bool   `json:"immediate"`
	When      string `json:"when"`
}

// CoachingOutput is the user-visible artifact of one executed decision.
// One output per successfully executed decision, never more.
type CoachingOutput struct {
	ID              string            `json:"id"`
	DecisionID      string            `json:"decision_id"`
	Type            OutputType        `json:"type"`
	Priority        decision.Priority `json:"priority"`
	Title           string            `json:"title"`
	Message         string            `json:"message"`
	ActionItems     []string          `json:"action_items,omitempty"`
	Timing          Timing            `json:"timing"`
	Personalization string            `json:"personalization"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Deliverer pushes a finished output to one delivery channel (overlay,
// audio, event stream). There is no feedback channel from a deliverer;
// player reactions come back only through the user-feedback API.
type Deliverer interface {
	Deliver(out *CoachingOutput) error
}

// Formatter converts execution results into coaching outputs.
type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format builds a CoachingOutput from one decision and its chain result.
// Returns an error when nothing succeeded; a partially successful chain
// still yields an output from the steps that did succeed.
func (f *Formatter) Format(d *decision.AIDecision, res *tools.ChainResult, personality string) (*CoachingOutput, error) {
	if d == nil || res == nil {
		return nil, fmt.Errorf("format requires a decision and an execution result")
	}

	message, actionItems := f.collectText(d, res)
	if message == "" {
		return nil, fmt.Errorf("decision %s produced no usable output (success rate %.2f)", d.ID, res.SuccessRate)
	}

	outType := typeFor(d)
	return &CoachingOutput{
		ID:              uuid.New().String(),
		DecisionID:      d.ID,
		Type:            outType,
		Priority:        d.Priority,
		Title:           titleFor(outType),
		Message:         message,
		ActionItems:     actionItems,
		Timing:          timingFor(d.Priority),
		Personalization: personality,
		CreatedAt:       time.Now(),
	}, nil
}

// collectText walks the chain in plan order so the primary advice step,
// which decisions always put first, becomes the message. Remaining
// successful outputs become action items.
func (f *Formatter) collectText(d *decision.AIDecision, res *tools.ChainResult) (string, []string) {
	var message string
	var items []string
	for _, step := range d.ToolChain {
		sr, ok := res.Steps[step.StepID]
		if !ok || !sr.Success {
			continue
		}
		text := strings.TrimSpace(sr.Output)
		if text == "" {
			continue
		}
		if message == "" {
			message = text
			continue
		}
		items = append(items, text)
	}
	return message, items
}

func typeFor(d *decision.AIDecision) OutputType {
	switch d.Priority {
	case decision.PriorityImmediate:
		return TypeTacticalAdvice
	}
	for _, step := range d.ToolChain {
		switch step.ToolName {
		case tools.ToolNameEconomy:
			return TypeBuyAdvice
		case tools.ToolNameTrackerStats:
			return TypePatternReview
		}
	}
	if strings.HasPrefix(d.Rationale, "recurring pattern") {
		return TypePatternReview
	}
	return TypeGeneral
}

func titleFor(t OutputType) string {
	switch t {
	case TypeTacticalAdvice:
		return "Tactical Call"
	case TypeBuyAdvice:
		return "Buy Advice"
	case TypePatternReview:
		return "Pattern Review"
	default:
		return "Coaching Tip"
	}
}

func timingFor(p decision.Priority) Timing {
	switch p {
	case decision.PriorityImmediate:
		return Timing{Immediate: true, When: "now"}
	case decision.PriorityHigh:
		return Timing{When: "this_round"}
	case decision.PriorityMedium:
		return Timing{When: "round_end"}
	default:
		return Timing{When: "next_break"}
	}
}

// Dispatcher fans one output out to every registered deliverer. Delivery
// failures are logged and skipped; they never fail the decision cycle.
type Dispatcher struct {
	deliverers []Deliverer
}

func NewDispatcher(deliverers ...Deliverer) *Dispatcher {
	return &Dispatcher{deliverers: deliverers}
}

func (d *Dispatcher) Add(del Deliverer) {
	d.deliverers = append(d.deliverers, del)
}

func (d *Dispatcher) Dispatch(out *CoachingOutput) {
	for _, del := range d.deliverers {
		if err := del.Deliver(out); err != nil {
			log.Printf("[Output] Delivery failed for output %s: %v", out.ID, err)
		}
	}
}

// LogDeliverer writes outputs to the process log. Always registered so a
// headless run still surfaces advice somewhere.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(out *CoachingOutput) error {
	log.Printf("[Output] [%s/%s] %s: %s", out.Type, out.Priority, out.Title, out.Message)
	return nil
}
