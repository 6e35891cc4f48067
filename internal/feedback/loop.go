// internal/feedback/loop.go
package feedback

import (
	"log"
	"sync"
	"time"

	"fragcoach/internal/monitor"
)

// PersonalityMetrics is the moving-average record for one coaching
// personality/strategy.
type PersonalityMetrics struct {
	Name          string    `json:"name"`
	UsageCount    int       `json:"usage_count"`
	SuccessRate   float64   `json:"success_rate"`
	AverageRating float64   `json:"average_rating"`
	LastUsed      time.Time `json:"last_used"`
}

// Loop consumes execution outcomes and user ratings, adapting personality
// selection weights and behavior-pattern weights. Updates are exponential
// moving averages: history is never replayed, the system is deliberately
// lossy by design of the update rule.
type Loop struct {
	mu sync.RWMutex

	alpha         float64
	personalities map[string]*PersonalityMetrics
	patternWeight map[string]float64

	now func() time.Time
}

// NewLoop creates a feedback loop with learning rate alpha (default 0.1).
func NewLoop(alpha float64) *Loop {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.1
	}
	return &Loop{
		alpha:         alpha,
		personalities: make(map[string]*PersonalityMetrics),
		patternWeight: make(map[string]float64),
		now:           time.Now,
	}
}

// SetClock replaces the time source (for testing only).
func (l *Loop) SetClock(now func() time.Time) {
	l.now = now
}

// HandleOutcome implements monitor.FeedbackSink: folds one measured outcome
// into the personality metrics and the pattern weights.
func (l *Loop) HandleOutcome(outcome *monitor.ExecutionOutcome) {
	if outcome == nil {
		return
	}

	effectiveness := (outcome.MeasuredImpact.Learning +
		outcome.MeasuredImpact.Engagement +
		outcome.MeasuredImpact.Performance) / 3

	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.personalityLocked(outcome.Personality)
	p.UsageCount++
	p.SuccessRate = p.SuccessRate*(1-l.alpha) + effectiveness*l.alpha
	p.LastUsed = l.now()

	for _, desc := range outcome.ChangeDescriptions {
		category := CategorizePattern(desc)
		prev := l.patternWeightLocked(category)
		l.patternWeight[category] = prev*(1-l.alpha) + effectiveness*l.alpha
	}

	log.Printf("[FeedbackLoop] Outcome folded: personality=%s effectiveness=%.2f successRate=%.3f",
		p.Name, effectiveness, p.SuccessRate)
}

// RecordRating folds an explicit user rating (0..1) into a personality's
// average rating.
func (l *Loop) RecordRating(personality string, rating float64) {
	if rating < 0 {
		rating = 0
	}
	if rating > 1 {
		rating = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.personalityLocked(personality)
	p.AverageRating = p.AverageRating*(1-l.alpha) + rating*l.alpha
	p.LastUsed = l.now()
	log.Printf("[FeedbackLoop] Rating folded: personality=%s rating=%.2f avg=%.3f",
		p.Name, rating, p.AverageRating)
}

// SelectPersonality returns the personality with the highest combined score
// among the given candidates; unused candidates start neutral so new
// personalities get a chance.
func (l *Loop) SelectPersonality(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	best := candidates[0]
	bestScore := -1.0
	for _, name := range candidates {
		score := 0.5
		if p, ok := l.personalities[name]; ok && p.UsageCount > 0 {
			score = 0.7*p.SuccessRate + 0.3*p.AverageRating
		}
		if score > bestScore {
			bestScore = score
			best = name
		}
	}
	return best
}

// PersonalityStats returns a copy of one personality's metrics.
func (l *Loop) PersonalityStats(name string) (PersonalityMetrics, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.personalities[name]
	if !ok {
		return PersonalityMetrics{}, false
	}
	return *p, true
}

// PatternWeight returns the current weight of a pattern category.
func (l *Loop) PatternWeight(category string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.patternWeightLocked(category)
}

// Snapshot returns all personality metrics for stats reporting.
func (l *Loop) Snapshot() map[string]PersonalityMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]PersonalityMetrics, len(l.personalities))
	for name, p := range l.personalities {
		out[name] = *p
	}
	return out
}

func (l *Loop) personalityLocked(name string) *PersonalityMetrics {
	if name == "" {
		name = "default"
	}
	p, ok := l.personalities[name]
	if !ok {
		p = &PersonalityMetrics{Name: name, SuccessRate: 0.5, AverageRating: 0.5}
		l.personalities[name] = p
	}
	return p
}

func (l *Loop) patternWeightLocked(category string) float64 {
	if w, ok := l.patternWeight[category]; ok {
		return w
	}
	return 0.5 // neutral prior
}
