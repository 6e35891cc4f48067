// internal/gamestate/types.go
package gamestate

import (
	"time"
)

// GameContext classifies what kind of moment the player is in.
type GameContext string

const (
	ContextUnknown           GameContext = "unknown"
	ContextRoundStart        GameContext = "round_start"
	ContextMidRound          GameContext = "mid_round"
	ContextRoundEnd          GameContext = "round_end"
	ContextCriticalSituation GameContext = "critical_situation"
)

// Round phases as reported by the game state integration feed.
const (
	PhaseFreezetime = "freezetime"
	PhaseLive       = "live"
	PhaseOver       = "over"
)

// FactorKind categorizes a situational factor.
type FactorKind string

const (
	FactorTactical      FactorKind = "tactical"
	FactorPsychological FactorKind = "psychological"
	FactorEconomic      FactorKind = "economic"
	FactorPositional    FactorKind = "positional"
	FactorTemporal      FactorKind = "temporal"
)

// Severity grades how pressing a situational factor is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RawFrame is one game-state-integration payload as POSTed by the game.
// Fields the builder does not need are left unmodeled; unknown JSON keys are
// ignored on decode.
type RawFrame struct {
	Provider struct {
		Name      string `json:"name"`
		Timestamp int64  `json:"timestamp"`
	} `json:"provider"`
	Map struct {
		Name    string `json:"name"`
		Phase   string `json:"phase"`
		Round   int    `json:"round"`
		TeamCT  TeamScore `json:"team_ct"`
		TeamT   TeamScore `json:"team_t"`
	} `json:"map"`
	Round struct {
		Phase   string `json:"phase"`
		Bomb    string `json:"bomb"` // "", "planted", "defused", "exploded"
		WinTeam string `json:"win_team"`
	} `json:"round"`
	Player struct {
		SteamID  string `json:"steamid"`
		Name     string `json:"name"`
		Team     string `json:"team"`
		Activity string `json:"activity"`
		State    struct {
			Health     int `json:"health"`
			Armor      int `json:"armor"`
			Money      int `json:"money"`
			RoundKills int `json:"round_kills"`
			EquipValue int `json:"equip_value"`
		} `json:"state"`
		MatchStats struct {
			Kills   int `json:"kills"`
			Assists int `json:"assists"`
			Deaths  int `json:"deaths"`
			MVPs    int `json:"mvps"`
			Score   int `json:"score"`
		} `json:"match_stats"`
		Position string `json:"position"`
	} `json:"player"`
}

type TeamScore struct {
	Score                int `json:"score"`
	ConsecutiveRoundLosses int `json:"consecutive_round_losses"`
}

// SituationalFactor is a derived risk/urgency signal for one snapshot.
type SituationalFactor struct {
	Kind           FactorKind `json:"kind"`
	Description    string     `json:"description"`
	Severity       Severity   `json:"severity"`
	Relevance      float64    `json:"relevance"` // 0..1
	ActionRequired bool       `json:"action_required"`
}

// PlayerState is the normalized per-player slice of a snapshot.
type PlayerState struct {
	SteamID    string `json:"steamid"`
	Name       string `json:"name"`
	Team       string `json:"team"`
	Health     int    `json:"health"`
	Armor      int    `json:"armor"`
	Money      int    `json:"money"`
	RoundKills int    `json:"round_kills"`
	Kills      int    `json:"kills"`
	Deaths     int    `json:"deaths"`
	Role       string `json:"role,omitempty"`
}

// TeamState carries the scoreboard view.
type TeamState struct {
	Side       string `json:"side"`
	Score      int    `json:"score"`
	EnemyScore int    `json:"enemy_score"`
	LossStreak int    `json:"loss_streak"`
}

// MapState identifies where in the match we are.
type MapState struct {
	Name        string `json:"name"`
	Round       int    `json:"round"`
	Phase       string `json:"phase"`
	BombPlanted bool   `json:"bomb_planted"`
}

// EconomyState is the money slice DecisionEngine reads for buy advice.
type EconomyState struct {
	Money      int  `json:"money"`
	EquipValue int  `json:"equip_value"`
	CanFullBuy bool `json:"can_full_buy"`
}

// GameStateSnapshot is one normalized telemetry frame. Immutable once built;
// owned by StateHistory after creation.
type GameStateSnapshot struct {
	SequenceID int64               `json:"sequence_id"`
	Timestamp  time.Time           `json:"timestamp"`
	Context    GameContext         `json:"context"`
	Phase      string              `json:"phase"`
	Player     PlayerState         `json:"player"`
	Team       TeamState           `json:"team"`
	Map        MapState            `json:"map"`
	Economy    EconomyState        `json:"economy"`
	Factors    []SituationalFactor `json:"factors"`
	Raw        *RawFrame           `json:"-"`
}

// HasCriticalFactor reports whether any factor carries critical severity.
func (s *GameStateSnapshot) HasCriticalFactor() bool {
	for _, f := range s.Factors {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// StateChange is one observed difference between consecutive snapshots. It is
// the unit the effectiveness monitor consumes as evidence.
type StateChange struct {
	Type         string    `json:"type"` // movement | combat | economy | utility | teamplay
	Description  string    `json:"description"`
	Significance float64   `json:"significance"` // 0..1
	Timestamp    time.Time `json:"timestamp"`
}
