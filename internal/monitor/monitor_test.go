package monitor

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"fragcoach/internal/gamestate"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type capturingSink struct {
	mu       sync.Mutex
	outcomes []*ExecutionOutcome
}

func (s *capturingSink) HandleOutcome(outcome *ExecutionOutcome) {
	s.mu.Lock()
	s.outcomes = append(s.outcomes, outcome)
	s.mu.Unlock()
}

func (s *capturingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

func (s *capturingSink) last() *ExecutionOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return nil
	}
	return s.outcomes[len(s.outcomes)-1]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinMonitoringTime = 10 * time.Second
	cfg.MaxMonitoringTime = 60 * time.Second
	cfg.LearningThreshold = 0.6
	return cfg
}

func newTestMonitor(t *testing.T) (*Monitor, *fakeClock, *capturingSink) {
	t.Helper()
	clock := newFakeClock()
	sink := &capturingSink{}
	m := New(testConfig(), sink, nil)
	m.SetClock(clock.Now)
	return m, clock, sink
}

func change(clock *fakeClock, typ, desc string, sig float64) gamestate.StateChange {
	return gamestate.StateChange{Type: typ, Description: desc, Significance: sig, Timestamp: clock.Now()}
}

func TestMonitor_NoFeedbackBeforeMinTime(t *testing.T) {
	m, clock, sink := newTestMonitor(t)

	id, err := m.StartMonitoring("sugg-1", "supportive")
	if err != nil {
		t.Fatalf("StartMonitoring failed: %v", err)
	}

	// One strong change at t=5s: threshold met, but min time is not.
	clock.Advance(5 * time.Second)
	if err := m.RecordCheckpoint(id, []gamestate.StateChange{change(clock, "combat", "secured kill", 0.9)}); err != nil {
		t.Fatalf("RecordCheckpoint failed: %v", err)
	}
	if sink.count() != 0 {
		t.Fatal("feedback must not fire before min monitoring time")
	}

	// Past min time the queued condition fires on the next evaluation.
	clock.Advance(6 * time.Second)
	m.Sweep()
	if sink.count() != 1 {
		t.Fatal("feedback should fire once min monitoring time has elapsed")
	}
	if m.ActiveSessions() != 0 {
		t.Error("session must be removed after completion")
	}
}

func TestMonitor_NoChangesForceCompletesAtMax(t *testing.T) {
	m, clock, sink := newTestMonitor(t)

	if _, err := m.StartMonitoring("sugg-1", "supportive"); err != nil {
		t.Fatalf("StartMonitoring failed: %v", err)
	}

	clock.Advance(59 * time.Second)
	m.Sweep()
	if sink.count() != 0 {
		t.Fatal("session with no changes must not emit feedback before max window")
	}

	clock.Advance(2 * time.Second)
	m.Sweep()
	if sink.count() != 1 {
		t.Fatal("session must force-complete at max window")
	}

	out := sink.last()
	if out.PlayerReaction != ReactionResistant {
		t.Errorf("expected resistant reaction with no evidence, got %s", out.PlayerReaction)
	}
	if out.Success {
		t.Error("no-evidence outcome must not be success")
	}
}

func TestMonitor_CheckpointDedupe(t *testing.T) {
	m, clock, _ := newTestMonitor(t)

	id, _ := m.StartMonitoring("sugg-1", "supportive")
	clock.Advance(2 * time.Second)
	c := change(clock, "combat", "secured kill", 0.8)

	_ = m.RecordCheckpoint(id, []gamestate.StateChange{c})
	_ = m.RecordCheckpoint(id, []gamestate.StateChange{c})

	status, err := m.GetStatus(id)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if len(status.Changes) != 1 {
		t.Errorf("duplicate checkpoint must not double-count: got %d changes", len(status.Changes))
	}
}

func TestMonitor_SignificanceFilter(t *testing.T) {
	m, clock, _ := newTestMonitor(t)

	id, _ := m.StartMonitoring("sugg-1", "supportive")
	clock.Advance(time.Second)
	_ = m.RecordCheckpoint(id, []gamestate.StateChange{
		change(clock, "movement", "small reposition", 0.1),
		change(clock, "combat", "secured kill", 0.8),
	})

	status, _ := m.GetStatus(id)
	if len(status.Changes) != 1 {
		t.Fatalf("below-threshold change must be filtered, got %d", len(status.Changes))
	}
	if status.Changes[0].Type != "combat" {
		t.Errorf("wrong change kept: %s", status.Changes[0].Type)
	}
}

func TestMonitor_Scores(t *testing.T) {
	m, clock, _ := newTestMonitor(t)

	id, _ := m.StartMonitoring("sugg-1", "supportive")
	clock.Advance(time.Second)
	_ = m.RecordCheckpoint(id, []gamestate.StateChange{
		change(clock, "combat", "secured kill", 0.8),
		change(clock, "economy", "spent $4000", 0.6),
	})

	status, _ := m.GetStatus(id)
	eff := status.Effectiveness

	// Same-age changes: learning equals the plain significance average.
	if math.Abs(eff.Learning-0.7) > 1e-9 {
		t.Errorf("expected learning 0.7, got %v", eff.Learning)
	}
	// engagement = (2/5 + 2/10) / 2 = 0.3
	if math.Abs(eff.Engagement-0.3) > 1e-9 {
		t.Errorf("expected engagement 0.3, got %v", eff.Engagement)
	}
	// impact = mean significance
	if math.Abs(eff.Impact-0.7) > 1e-9 {
		t.Errorf("expected impact 0.7, got %v", eff.Impact)
	}
}

func TestMonitor_LearningDecayFavorsRecent(t *testing.T) {
	// Raise the thresholds so the session stays open for inspection.
	cfg := testConfig()
	cfg.LearningThreshold = 0.99
	cfg.EngagementThreshold = 0.99
	clock := newFakeClock()
	m := New(cfg, nil, nil)
	m.SetClock(clock.Now)

	id, _ := m.StartMonitoring("sugg-1", "supportive")
	_ = m.RecordCheckpoint(id, []gamestate.StateChange{change(clock, "combat", "early weak change", 0.4)})

	// 40 seconds later a strong change arrives; with 30s decay the recent
	// evidence dominates the weighted average.
	clock.Advance(40 * time.Second)
	_ = m.RecordCheckpoint(id, []gamestate.StateChange{change(clock, "combat", "late strong change", 0.9)})

	status, err := m.GetStatus(id)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Effectiveness.Learning <= 0.7 {
		t.Errorf("recent strong evidence should dominate: learning=%v", status.Effectiveness.Learning)
	}
}

func TestMonitor_EarlyStopOnHighLearning(t *testing.T) {
	m, clock, sink := newTestMonitor(t)

	id, _ := m.StartMonitoring("sugg-1", "supportive")
	clock.Advance(12 * time.Second) // past min time
	_ = m.RecordCheckpoint(id, []gamestate.StateChange{change(clock, "combat", "secured kill", 0.9)})

	if sink.count() != 1 {
		t.Fatal("expected early stop once min time elapsed and learning over threshold")
	}
	out := sink.last()
	if out.MeasuredImpact.Performance < 0.8 {
		t.Errorf("expected impact >= 0.8, got %v", out.MeasuredImpact.Performance)
	}
	if out.SuggestionID != "sugg-1" {
		t.Errorf("wrong suggestion id: %s", out.SuggestionID)
	}
}

func TestMonitor_ReactionInference(t *testing.T) {
	m, clock, sink := newTestMonitor(t)

	id, _ := m.StartMonitoring("sugg-1", "supportive")
	// Many varied strong changes: engagement and learning both high.
	clock.Advance(11 * time.Second)
	var changes []gamestate.StateChange
	types := []string{"combat", "movement", "economy", "utility", "teamplay"}
	for i := 0; i < 10; i++ {
		changes = append(changes, gamestate.StateChange{
			Type:         types[i%5],
			Description:  "change " + string(rune('a'+i)),
			Significance: 0.9,
			Timestamp:    clock.Now().Add(time.Duration(i) * time.Millisecond),
		})
	}
	_ = m.RecordCheckpoint(id, changes)

	if sink.count() != 1 {
		t.Fatal("expected completion")
	}
	out := sink.last()
	if out.PlayerReaction != ReactionPositive {
		t.Errorf("expected positive reaction, got %s", out.PlayerReaction)
	}
	if !out.Success {
		t.Error("positive reaction must be a success")
	}
	if out.FollowUpRequired {
		t.Error("successful outcome needs no follow-up")
	}
}

func TestMonitor_ConfidenceComponents(t *testing.T) {
	m, clock, sink := newTestMonitor(t)

	id, _ := m.StartMonitoring("sugg-1", "supportive")
	clock.Advance(30 * time.Second) // half of the max window
	_ = m.RecordCheckpoint(id, []gamestate.StateChange{
		change(clock, "combat", "kill one", 0.9),
	})
	// Force completion to lock the component values.
	if err := m.ForceComplete(id, "test"); err != nil && !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("ForceComplete failed: %v", err)
	}

	if sink.count() != 1 {
		t.Fatal("expected one outcome")
	}
	out := sink.last()
	// duration 30/60 = 0.5, count 1/10 = 0.1, variety 1/5 = 0.2 → 0.2667
	want := (0.5 + 0.1 + 0.2) / 3
	if math.Abs(out.Confidence-want) > 1e-9 {
		t.Errorf("expected confidence %v, got %v", want, out.Confidence)
	}
}

func TestMonitor_SessionCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 2
	m := New(cfg, nil, nil)

	if _, err := m.StartMonitoring("s1", "p"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.StartMonitoring("s2", "p"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.StartMonitoring("s3", "p"); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("expected ErrTooManySessions, got %v", err)
	}
}

func TestMonitor_DuplicateSuggestionRejected(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	if _, err := m.StartMonitoring("s1", "p"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.StartMonitoring("s1", "p"); err == nil {
		t.Error("expected error for duplicate suggestion monitoring")
	}
}

func TestMonitor_ForceCompleteAllFlushesPartialFeedback(t *testing.T) {
	m, clock, sink := newTestMonitor(t)

	id1, _ := m.StartMonitoring("s1", "p")
	_, _ = m.StartMonitoring("s2", "p")
	clock.Advance(3 * time.Second)
	_ = m.RecordCheckpoint(id1, []gamestate.StateChange{change(clock, "combat", "kill", 0.8)})

	m.ForceCompleteAll("match ended")

	if sink.count() != 2 {
		t.Fatalf("expected 2 flushed outcomes, got %d", sink.count())
	}
	if m.ActiveSessions() != 0 {
		t.Error("all sessions must be removed")
	}
}
