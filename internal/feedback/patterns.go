// internal/feedback/patterns.go
package feedback

import (
	"strings"
)

// Pattern categories for behavior-change classification.
const (
	CategoryMovement = "movement"
	CategoryCombat   = "combat"
	CategoryEconomy  = "economy"
	CategoryUtility  = "utility"
	CategoryTeamplay = "teamplay"
	CategoryGeneral  = "general"
)

var movementKeywords = []string{
	"position", "reposition", "rotate", "rotation", "push", "peek",
	"fall back", "retreat", "angle", "lurk", "flank", "move",
}

var combatKeywords = []string{
	"kill", "duel", "aim", "spray", "headshot", "trade", "fight",
	"damage", "engage", "clutch", "entry",
}

var economyKeywords = []string{
	"buy", "save", "eco", "money", "economy", "spend", "force",
	"armor", "loadout", "equip",
}

var utilityKeywords = []string{
	"smoke", "flash", "grenade", "molotov", "nade", "util", "bomb",
	"plant", "defuse",
}

var teamplayKeywords = []string{
	"team", "trade", "support", "together", "stack", "call",
	"communicate", "round won", "round lost",
}

// CategorizePattern buckets free-form pattern text into a weight category
// by keyword match. First match wins in a fixed order so overlapping
// keywords classify deterministically.
func CategorizePattern(text string) string {
	lower := strings.ToLower(text)

	buckets := []struct {
		category string
		keywords []string
	}{
		{CategoryMovement, movementKeywords},
		{CategoryCombat, combatKeywords},
		{CategoryEconomy, economyKeywords},
		{CategoryUtility, utilityKeywords},
		{CategoryTeamplay, teamplayKeywords},
	}

	for _, b := range buckets {
		for _, kw := range b.keywords {
			if strings.Contains(lower, kw) {
				return b.category
			}
		}
	}
	return CategoryGeneral
}
