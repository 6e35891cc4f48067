// internal/gamestate/diff.go
package gamestate

import (
	"fmt"
)

// Change types consumed by the effectiveness monitor.
const (
	ChangeMovement = "movement"
	ChangeCombat   = "combat"
	ChangeEconomy  = "economy"
	ChangeUtility  = "utility"
	ChangeTeamplay = "teamplay"
)

// Diff compares two consecutive snapshots and reports significant state
// changes. The significance scale is 0..1; minor fluctuations score low and
// are expected to be filtered by the consumer's threshold.
func Diff(prev, curr *GameStateSnapshot) []StateChange {
	if prev == nil || curr == nil {
		return nil
	}

	var changes []StateChange
	add := func(typ, desc string, sig float64) {
		if sig > 1 {
			sig = 1
		}
		changes = append(changes, StateChange{
			Type:         typ,
			Description:  desc,
			Significance: sig,
			Timestamp:    curr.Timestamp,
		})
	}

	if kills := curr.Player.Kills - prev.Player.Kills; kills > 0 {
		add(ChangeCombat, fmt.Sprintf("secured %d kill(s)", kills), 0.6+0.2*float64(kills))
	}
	if curr.Player.Deaths > prev.Player.Deaths {
		add(ChangeCombat, "player died", 0.8)
	}
	if dmg := prev.Player.Health - curr.Player.Health; dmg > 0 && curr.Player.Health > 0 {
		add(ChangeCombat, fmt.Sprintf("took %d damage", dmg), float64(dmg)/100.0)
	}
	if curr.Player.Health > prev.Player.Health {
		add(ChangeUtility, "health restored", 0.3)
	}

	if spent := prev.Economy.Money - curr.Economy.Money; spent >= 500 {
		add(ChangeEconomy, fmt.Sprintf("spent $%d", spent), float64(spent)/8000.0+0.2)
	}
	if curr.Economy.Money-prev.Economy.Money >= 1000 {
		add(ChangeEconomy, "round income received", 0.3)
	}

	if prev.Raw != nil && curr.Raw != nil && prev.Raw.Player.Position != curr.Raw.Player.Position {
		add(ChangeMovement, "repositioned", 0.35)
	}

	if curr.Team.Score > prev.Team.Score {
		add(ChangeTeamplay, "round won", 0.7)
	} else if curr.Team.EnemyScore > prev.Team.EnemyScore {
		add(ChangeTeamplay, "round lost", 0.5)
	}

	if !prev.Map.BombPlanted && curr.Map.BombPlanted {
		add(ChangeUtility, "bomb planted", 0.6)
	}

	return changes
}
