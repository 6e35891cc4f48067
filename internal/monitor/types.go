// internal/monitor/types.go
package monitor

import (
	"time"

	"fragcoach/internal/gamestate"
)

// PlayerReaction is the discrete judgment inferred from the scores.
type PlayerReaction string

const (
	ReactionPositive  PlayerReaction = "positive"
	ReactionNeutral   PlayerReaction = "neutral"
	ReactionResistant PlayerReaction = "resistant"
)

// Effectiveness holds the three rolling scores for one session.
type Effectiveness struct {
	Learning   float64 `json:"learning"`
	Engagement float64 `json:"engagement"`
	Impact     float64 `json:"impact"`
}

// MeasuredImpact is the score triple carried into the outcome record.
type MeasuredImpact struct {
	Performance float64 `json:"performance"`
	Engagement  float64 `json:"engagement"`
	Learning    float64 `json:"learning"`
}

// ExecutionOutcome is the terminal judgment of one suggestion; the unit the
// feedback loop consumes to update weights.
type ExecutionOutcome struct {
	SuggestionID     string         `json:"suggestion_id"`
	Personality      string         `json:"personality"`
	Success          bool           `json:"success"`
	PlayerReaction   PlayerReaction `json:"player_reaction"`
	MeasuredImpact   MeasuredImpact `json:"measured_impact"`
	FollowUpRequired bool           `json:"follow_up_required"`
	Confidence       float64        `json:"confidence"`
	ChangeDescriptions []string     `json:"change_descriptions,omitempty"`
	MonitoredFor     time.Duration  `json:"monitored_for"`
}

// Status is the externally visible view of one active session.
type Status struct {
	MonitoringID  string                  `json:"monitoring_id"`
	SuggestionID  string                  `json:"suggestion_id"`
	Personality   string                  `json:"personality"`
	StartTime     time.Time               `json:"start_time"`
	LastUpdate    time.Time               `json:"last_update"`
	Effectiveness Effectiveness           `json:"effectiveness"`
	Changes       []gamestate.StateChange `json:"changes"`
}

// Config tunes the monitoring window and thresholds. All values come from
// configuration defaults; none are assumed optimal.
type Config struct {
	MinMonitoringTime     time.Duration
	MaxMonitoringTime     time.Duration
	SignificanceThreshold float64
	LearningThreshold     float64
	EngagementThreshold   float64
	Decay                 time.Duration
	MaxSessions           int

	// Denominators of the engagement score.
	ExpectedChangeTypes int
	ExpectedChangeCount int
}

// DefaultConfig returns the calibration the scoring model shipped with.
func DefaultConfig() Config {
	return Config{
		MinMonitoringTime:     10 * time.Second,
		MaxMonitoringTime:     60 * time.Second,
		SignificanceThreshold: 0.3,
		LearningThreshold:     0.6,
		EngagementThreshold:   0.6,
		Decay:                 30 * time.Second,
		MaxSessions:           64,
		ExpectedChangeTypes:   5,
		ExpectedChangeCount:   10,
	}
}

// FeedbackSink receives the outcome of a completed session.
type FeedbackSink interface {
	HandleOutcome(outcome *ExecutionOutcome)
}
