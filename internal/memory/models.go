// internal/memory/models.go
package memory

import (
	"time"

	"gorm.io/datatypes"
)

// PlayerProfile is the long-lived per-player record. Created lazily the
// first time a player's telemetry is seen.
type PlayerProfile struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	SteamID         string         `gorm:"uniqueIndex;size:32;not null" json:"steamid"`
	Name            string         `gorm:"size:64" json:"name"`
	SuggestionCount int64          `json:"suggestionCount"`
	Preferences     datatypes.JSON `json:"preferences"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// CoachingRecord archives one delivered output for later retrieval.
type CoachingRecord struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SteamID     string         `gorm:"index;size:32;not null" json:"steamid"`
	OutputID    string         `gorm:"uniqueIndex;size:40" json:"outputId"`
	DecisionID  string         `gorm:"size:40" json:"decisionId"`
	Type        string         `gorm:"size:24" json:"type"`
	Priority    string         `gorm:"size:12" json:"priority"`
	Personality string         `gorm:"size:24" json:"personality"`
	Message     string         `gorm:"type:text" json:"message"`
	ActionItems datatypes.JSON `json:"actionItems"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// SnapshotRecord persists one normalized telemetry frame per match for
// offline review. The full snapshot rides along as JSON.
type SnapshotRecord struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	MatchID    string         `gorm:"index;size:96;not null" json:"matchId"`
	SequenceID int64          `json:"sequenceId"`
	Context    string         `gorm:"size:24" json:"context"`
	Payload    datatypes.JSON `json:"payload"`
	CreatedAt  time.Time      `json:"createdAt"`
}
