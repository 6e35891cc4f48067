// internal/gamestate/builder.go
package gamestate

import (
	"sync/atomic"
	"time"
)

// RoleClassifier infers the player's current role (entry, lurker, anchor...).
// The default heuristic is deliberately replaceable: the signals it reads
// overlap and a smarter classifier can be swapped in without touching the
// builder.
type RoleClassifier interface {
	ClassifyRole(snap *GameStateSnapshot, prev *GameStateSnapshot) string
}

// HeuristicRoleClassifier buckets roles from round kills and position churn.
type HeuristicRoleClassifier struct{}

func (h *HeuristicRoleClassifier) ClassifyRole(snap *GameStateSnapshot, prev *GameStateSnapshot) string {
	if snap.Player.RoundKills >= 2 {
		return "entry"
	}
	if prev != nil && snap.Raw != nil && prev.Raw != nil &&
		snap.Raw.Player.Position == prev.Raw.Player.Position && snap.Phase == PhaseLive {
		return "anchor"
	}
	return "lurker"
}

// SnapshotBuilder turns raw telemetry frames into normalized snapshots.
type SnapshotBuilder struct {
	seq        int64
	classifier RoleClassifier

	// Thresholds for factor extraction
	lowHealth     int
	criticalDrop  int
	fullBuyBudget int
}

// NewSnapshotBuilder creates a builder with default thresholds.
func NewSnapshotBuilder(classifier RoleClassifier) *SnapshotBuilder {
	if classifier == nil {
		classifier = &HeuristicRoleClassifier{}
	}
	return &SnapshotBuilder{
		classifier:    classifier,
		lowHealth:     30,
		criticalDrop:  50,
		fullBuyBudget: 4700,
	}
}

// Build normalizes one raw frame against the previous snapshot. Returns nil
// when required fields are absent; callers must treat a nil snapshot as
// "skip this frame", never as an error.
func (b *SnapshotBuilder) Build(raw *RawFrame, prev *GameStateSnapshot) *GameStateSnapshot {
	if raw == nil || raw.Player.SteamID == "" || raw.Map.Name == "" {
		return nil
	}

	ts := time.Now()
	if raw.Provider.Timestamp > 0 {
		ts = time.Unix(raw.Provider.Timestamp, 0)
	}

	snap := &GameStateSnapshot{
		SequenceID: atomic.AddInt64(&b.seq, 1),
		Timestamp:  ts,
		Phase:      raw.Round.Phase,
		Player: PlayerState{
			SteamID:    raw.Player.SteamID,
			Name:       raw.Player.Name,
			Team:       raw.Player.Team,
			Health:     raw.Player.State.Health,
			Armor:      raw.Player.State.Armor,
			Money:      raw.Player.State.Money,
			RoundKills: raw.Player.State.RoundKills,
			Kills:      raw.Player.MatchStats.Kills,
			Deaths:     raw.Player.MatchStats.Deaths,
		},
		Map: MapState{
			Name:        raw.Map.Name,
			Round:       raw.Map.Round,
			Phase:       raw.Map.Phase,
			BombPlanted: raw.Round.Bomb == "planted",
		},
		Economy: EconomyState{
			Money:      raw.Player.State.Money,
			EquipValue: raw.Player.State.EquipValue,
			CanFullBuy: raw.Player.State.Money >= b.fullBuyBudget,
		},
		Raw: raw,
	}
	snap.Team = buildTeamState(raw)
	snap.Factors = b.extractFactors(snap, prev)
	snap.Context = b.classifyContext(snap, prev)
	snap.Player.Role = b.classifier.ClassifyRole(snap, prev)

	return snap
}

func buildTeamState(raw *RawFrame) TeamState {
	ts := TeamState{Side: raw.Player.Team}
	switch raw.Player.Team {
	case "CT":
		ts.Score = raw.Map.TeamCT.Score
		ts.EnemyScore = raw.Map.TeamT.Score
		ts.LossStreak = raw.Map.TeamCT.ConsecutiveRoundLosses
	case "T":
		ts.Score = raw.Map.TeamT.Score
		ts.EnemyScore = raw.Map.TeamCT.Score
		ts.LossStreak = raw.Map.TeamT.ConsecutiveRoundLosses
	}
	return ts
}

// classifyContext runs the round-phase state machine. critical_situation
// overrides the phase-derived context whenever a critical factor is present.
func (b *SnapshotBuilder) classifyContext(snap *GameStateSnapshot, prev *GameStateSnapshot) GameContext {
	if snap.HasCriticalFactor() {
		return ContextCriticalSituation
	}

	switch snap.Phase {
	case PhaseFreezetime:
		return ContextRoundStart
	case PhaseLive:
		return ContextMidRound
	case PhaseOver:
		return ContextRoundEnd
	}

	// Phase field missing: fall back to the previous context rather than
	// inventing a transition off incomplete data.
	if prev != nil {
		return prev.Context
	}
	return ContextUnknown
}

// extractFactors derives the risk/urgency signals for this frame.
func (b *SnapshotBuilder) extractFactors(snap *GameStateSnapshot, prev *GameStateSnapshot) []SituationalFactor {
	var factors []SituationalFactor

	if snap.Player.Health > 0 && snap.Player.Health <= b.lowHealth {
		sev := SeverityHigh
		if snap.Player.Health <= 20 {
			sev = SeverityCritical
		}
		factors = append(factors, SituationalFactor{
			Kind:           FactorTactical,
			Description:    "low health",
			Severity:       sev,
			Relevance:      1.0 - float64(snap.Player.Health)/100.0,
			ActionRequired: true,
		})
	}

	if prev != nil {
		drop := prev.Player.Health - snap.Player.Health
		if drop >= b.criticalDrop && snap.Player.Health > 0 {
			factors = append(factors, SituationalFactor{
				Kind:           FactorPsychological,
				Description:    "took heavy damage",
				Severity:       SeverityCritical,
				Relevance:      float64(drop) / 100.0,
				ActionRequired: true,
			})
		}
	}

	if snap.Phase == PhaseFreezetime && snap.Economy.Money < 2000 {
		factors = append(factors, SituationalFactor{
			Kind:           FactorEconomic,
			Description:    "low economy buy round",
			Severity:       SeverityMedium,
			Relevance:      0.7,
			ActionRequired: true,
		})
	}

	if snap.Map.BombPlanted {
		factors = append(factors, SituationalFactor{
			Kind:           FactorTemporal,
			Description:    "bomb planted",
			Severity:       SeverityHigh,
			Relevance:      0.9,
			ActionRequired: true,
		})
	}

	if snap.Team.LossStreak >= 3 {
		factors = append(factors, SituationalFactor{
			Kind:           FactorPsychological,
			Description:    "team on loss streak",
			Severity:       SeverityMedium,
			Relevance:      0.5,
			ActionRequired: false,
		})
	}

	return factors
}
