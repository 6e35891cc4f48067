// internal/gamestate/history.go
package gamestate

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrOutOfOrder = errors.New("snapshot sequence id not increasing")

// SnapshotSink receives snapshots for long-term persistence. The history
// treats it as best-effort external storage: persistence failures are logged,
// never propagated to the telemetry path.
type SnapshotSink interface {
	PersistSnapshot(ctx context.Context, matchID string, snap *GameStateSnapshot) error
}

// History is an append-only rolling buffer of snapshots for one match.
type History struct {
	mu      sync.RWMutex
	matchID string
	window  int
	snaps   []*GameStateSnapshot
	lastSeq int64
	sink    SnapshotSink
}

// NewHistory creates a rolling history holding at most window snapshots.
func NewHistory(matchID string, window int, sink SnapshotSink) *History {
	if window <= 0 {
		window = 128
	}
	return &History{matchID: matchID, window: window, sink: sink}
}

// Append records a snapshot. Frames must arrive in strictly increasing
// sequence order; a stale frame is rejected so consumers never observe
// reordered telemetry.
func (h *History) Append(ctx context.Context, snap *GameStateSnapshot) error {
	if snap == nil {
		return nil
	}

	h.mu.Lock()
	if snap.SequenceID <= h.lastSeq {
		h.mu.Unlock()
		return ErrOutOfOrder
	}
	h.lastSeq = snap.SequenceID
	h.snaps = append(h.snaps, snap)
	if len(h.snaps) > h.window {
		h.snaps = h.snaps[len(h.snaps)-h.window:]
	}
	h.mu.Unlock()

	if h.sink != nil {
		if err := h.sink.PersistSnapshot(ctx, h.matchID, snap); err != nil {
			log.Printf("[StateHistory] WARNING: failed to persist snapshot %d: %v", snap.SequenceID, err)
		}
	}
	return nil
}

// Latest returns the most recent snapshot, or nil.
func (h *History) Latest() *GameStateSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.snaps) == 0 {
		return nil
	}
	return h.snaps[len(h.snaps)-1]
}

// Recent returns up to n most recent snapshots, oldest first.
func (h *History) Recent(n int) []*GameStateSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || len(h.snaps) == 0 {
		return nil
	}
	if n > len(h.snaps) {
		n = len(h.snaps)
	}
	out := make([]*GameStateSnapshot, n)
	copy(out, h.snaps[len(h.snaps)-n:])
	return out
}

// Len returns the number of buffered snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.snaps)
}

// MatchID returns the match this history belongs to.
func (h *History) MatchID() string {
	return h.matchID
}

// DetectPatterns scans the recent window for simple trends the decision
// engine folds into its context.
func (h *History) DetectPatterns(window int) []string {
	snaps := h.Recent(window)
	if len(snaps) < 3 {
		return nil
	}

	var patterns []string

	healthDrops := 0
	moneyDrops := 0
	deaths := 0
	for i := 1; i < len(snaps); i++ {
		if snaps[i].Player.Health < snaps[i-1].Player.Health {
			healthDrops++
		}
		if snaps[i].Economy.Money < snaps[i-1].Economy.Money {
			moneyDrops++
		}
		if snaps[i].Player.Deaths > snaps[i-1].Player.Deaths {
			deaths++
		}
	}

	if healthDrops >= len(snaps)/2 {
		patterns = append(patterns, "taking sustained damage")
	}
	if moneyDrops >= len(snaps)-1 {
		patterns = append(patterns, "economy declining")
	}
	if deaths >= 2 {
		patterns = append(patterns, "dying repeatedly")
	}
	if snaps[len(snaps)-1].Team.LossStreak >= 3 {
		patterns = append(patterns, "round loss streak")
	}

	return patterns
}
