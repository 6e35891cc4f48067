// internal/monitor/monitor.go
package monitor

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"fragcoach/internal/gamestate"
)

var (
	ErrSessionNotFound = errors.New("monitoring session not found")
	ErrTooManySessions = errors.New("monitoring session cap reached")
)

// session is one active observation window. Each session carries its own
// lock so updates to one never block updates to another; the outer map lock
// is held only for lookups and insert/remove.
type session struct {
	mu sync.Mutex

	id           string
	suggestionID string
	personality  string
	startTime    time.Time
	lastUpdate   time.Time
	scores       Effectiveness
	changes      []gamestate.StateChange
	seen         map[string]bool // dedupe key: timestamp + description
	completed    bool
}

// Monitor tracks the effectiveness of delivered coaching outputs. After a
// suggestion is delivered it opens a bounded observation window, accumulates
// state-change checkpoints and emits a feedback record once a stopping
// condition fires.
type Monitor struct {
	mu       sync.RWMutex
	sessions map[string]*session

	cfg  Config
	sink FeedbackSink
	now  func() time.Time

	// onError receives per-checkpoint scoring failures; they never terminate
	// the enclosing session.
	onError func(error)

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a monitor. sink may be nil (outcomes are then only logged);
// onError may be nil.
func New(cfg Config, sink FeedbackSink, onError func(error)) *Monitor {
	if cfg.MaxMonitoringTime <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.ExpectedChangeTypes <= 0 {
		cfg.ExpectedChangeTypes = 5
	}
	if cfg.ExpectedChangeCount <= 0 {
		cfg.ExpectedChangeCount = 10
	}
	return &Monitor{
		sessions: make(map[string]*session),
		cfg:      cfg,
		sink:     sink,
		now:      time.Now,
		onError:  onError,
		stopChan: make(chan struct{}),
	}
}

// SetClock replaces the time source (for testing only).
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// StartMonitoring opens a session for a delivered suggestion. Exactly one
// session is active per outstanding suggestion; exceeding the session cap is
// a resource-limit violation reported to the caller, not a crash.
func (m *Monitor) StartMonitoring(suggestionID, personality string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.cfg.MaxSessions {
		return "", fmt.Errorf("%w: %d active", ErrTooManySessions, len(m.sessions))
	}
	for _, s := range m.sessions {
		if s.suggestionID == suggestionID {
			return "", fmt.Errorf("suggestion %s already monitored", suggestionID)
		}
	}

	id := uuid.New().String()
	nowT := m.now()
	m.sessions[id] = &session{
		id:           id,
		suggestionID: suggestionID,
		personality:  personality,
		startTime:    nowT,
		lastUpdate:   nowT,
		seen:         make(map[string]bool),
	}
	log.Printf("[EffectivenessMonitor] Monitoring started: suggestion=%s session=%s", suggestionID, id)
	return id, nil
}

// ActiveSessions returns the number of open sessions.
func (m *Monitor) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetStatus returns a copy of one session's state.
func (m *Monitor) GetStatus(monitoringID string) (*Status, error) {
	m.mu.RLock()
	s, ok := m.sessions[monitoringID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changes := make([]gamestate.StateChange, len(s.changes))
	copy(changes, s.changes)
	return &Status{
		MonitoringID:  s.id,
		SuggestionID:  s.suggestionID,
		Personality:   s.personality,
		StartTime:     s.startTime,
		LastUpdate:    s.lastUpdate,
		Effectiveness: s.scores,
		Changes:       changes,
	}, nil
}

// RecordCheckpoint feeds new state changes into one session, recomputes the
// scores and checks the stopping condition. Scoring failures are absorbed
// per-event.
func (m *Monitor) RecordCheckpoint(monitoringID string, changes []gamestate.StateChange) error {
	m.mu.RLock()
	s, ok := m.sessions[monitoringID]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.checkpoint(s, changes)
	return nil
}

// RecordCheckpointAll broadcasts state changes to every active session; the
// same game evidence bears on every outstanding suggestion.
func (m *Monitor) RecordCheckpointAll(changes []gamestate.StateChange) {
	if len(changes) == 0 {
		return
	}
	m.mu.RLock()
	active := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.RUnlock()

	for _, s := range active {
		m.checkpoint(s, changes)
	}
}

func (m *Monitor) checkpoint(s *session, changes []gamestate.StateChange) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("checkpoint scoring panic in session %s: %v", s.id, r)
			log.Printf("[EffectivenessMonitor] ERROR: %v", err)
			if m.onError != nil {
				m.onError(err)
			}
		}
	}()

	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return
	}

	appended := false
	for _, c := range changes {
		if c.Significance < m.cfg.SignificanceThreshold {
			continue
		}
		key := c.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + c.Description
		if s.seen[key] {
			continue
		}
		s.seen[key] = true
		s.changes = append(s.changes, c)
		appended = true
	}

	nowT := m.now()
	if appended {
		s.lastUpdate = nowT
		s.scores = m.score(s, nowT)
	}
	shouldComplete := m.stopConditionLocked(s, nowT)
	s.mu.Unlock()

	if shouldComplete {
		m.complete(s, nowT)
	}
}

// score recomputes the three rolling scores from scratch on every checkpoint.
func (m *Monitor) score(s *session, nowT time.Time) Effectiveness {
	if len(s.changes) == 0 {
		return Effectiveness{}
	}

	// learning: significance-weighted average with exponential age decay,
	// so evidence shortly after the advice outweighs unrelated later events.
	var weightedSum, weightTotal float64
	for _, c := range s.changes {
		age := nowT.Sub(c.Timestamp).Seconds()
		if age < 0 {
			age = 0
		}
		w := math.Exp(-age / m.cfg.Decay.Seconds())
		weightedSum += c.Significance * w
		weightTotal += w
	}
	learning := 0.0
	if weightTotal > 0 {
		learning = weightedSum / weightTotal
	}

	// engagement: breadth and frequency of reaction.
	types := make(map[string]bool)
	var sigSum float64
	for _, c := range s.changes {
		types[c.Type] = true
		sigSum += c.Significance
	}
	variety := float64(len(types)) / float64(m.cfg.ExpectedChangeTypes)
	if variety > 1 {
		variety = 1
	}
	frequency := float64(len(s.changes)) / float64(m.cfg.ExpectedChangeCount)
	if frequency > 1 {
		frequency = 1
	}
	engagement := (variety + frequency) / 2

	// impact: pure magnitude of above-threshold changes.
	impact := sigSum / float64(len(s.changes))

	return Effectiveness{Learning: learning, Engagement: engagement, Impact: impact}
}

// stopConditionLocked implements the asymmetric early-stop rule: a clearly
// effective or clearly timed-out suggestion resolves early, ambiguous cases
// run to the max window. Caller holds s.mu.
func (m *Monitor) stopConditionLocked(s *session, nowT time.Time) bool {
	elapsed := nowT.Sub(s.startTime)
	if elapsed >= m.cfg.MaxMonitoringTime {
		return true
	}
	if elapsed < m.cfg.MinMonitoringTime {
		return false
	}
	if len(s.changes) == 0 {
		return false
	}
	return s.scores.Learning >= m.cfg.LearningThreshold ||
		s.scores.Engagement >= m.cfg.EngagementThreshold
}

// Sweep re-evaluates the stopping condition for every session: it completes
// sessions whose max window elapsed, and sessions whose early-stop condition
// was met between checkpoints (the rule queues until min monitoring time
// even when the thresholds are already satisfied). Called periodically; also
// usable directly from tests.
func (m *Monitor) Sweep() {
	nowT := m.now()
	m.mu.RLock()
	var expired []*session
	for _, s := range m.sessions {
		s.mu.Lock()
		if !s.completed && m.stopConditionLocked(s, nowT) {
			expired = append(expired, s)
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, s := range expired {
		m.complete(s, nowT)
	}
}

// ForceComplete terminates one session early (match ended, player
// disconnected), treated as reaching the max window: partial feedback is
// flushed, never dropped.
func (m *Monitor) ForceComplete(monitoringID, reason string) error {
	m.mu.RLock()
	s, ok := m.sessions[monitoringID]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	log.Printf("[EffectivenessMonitor] Force-completing session %s: %s", monitoringID, reason)
	m.complete(s, m.now())
	return nil
}

// ForceCompleteAll flushes every active session.
func (m *Monitor) ForceCompleteAll(reason string) {
	m.mu.RLock()
	active := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.RUnlock()

	if len(active) > 0 {
		log.Printf("[EffectivenessMonitor] Force-completing %d session(s): %s", len(active), reason)
	}
	nowT := m.now()
	for _, s := range active {
		m.complete(s, nowT)
	}
}

// complete generates the outcome, hands it to the sink and removes the
// session from the active set.
func (m *Monitor) complete(s *session, nowT time.Time) {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return
	}
	s.completed = true
	s.scores = m.score(s, nowT)
	outcome := m.buildOutcome(s, nowT)
	s.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	log.Printf("[EffectivenessMonitor] Monitoring completed: suggestion=%s reaction=%s learning=%.2f engagement=%.2f impact=%.2f confidence=%.2f",
		outcome.SuggestionID, outcome.PlayerReaction,
		outcome.MeasuredImpact.Learning, outcome.MeasuredImpact.Engagement,
		outcome.MeasuredImpact.Performance, outcome.Confidence)

	if m.sink != nil {
		m.sink.HandleOutcome(outcome)
	}
}

// buildOutcome infers the discrete reaction and computes confidence from
// three independent 0..1 coverage components averaged equally. Caller holds
// s.mu.
func (m *Monitor) buildOutcome(s *session, nowT time.Time) *ExecutionOutcome {
	var reaction PlayerReaction
	switch {
	case s.scores.Engagement > 0.8 && s.scores.Learning > 0.8:
		reaction = ReactionPositive
	case s.scores.Engagement > 0.5 || s.scores.Learning > 0.5:
		reaction = ReactionNeutral
	default:
		reaction = ReactionResistant
	}

	elapsed := nowT.Sub(s.startTime)
	durationCoverage := float64(elapsed) / float64(m.cfg.MaxMonitoringTime)
	if durationCoverage > 1 {
		durationCoverage = 1
	}
	countCoverage := float64(len(s.changes)) / float64(m.cfg.ExpectedChangeCount)
	if countCoverage > 1 {
		countCoverage = 1
	}
	types := make(map[string]bool)
	var descs []string
	for _, c := range s.changes {
		types[c.Type] = true
		descs = append(descs, c.Description)
	}
	varietyCoverage := float64(len(types)) / float64(m.cfg.ExpectedChangeTypes)
	if varietyCoverage > 1 {
		varietyCoverage = 1
	}
	confidence := (durationCoverage + countCoverage + varietyCoverage) / 3

	success := reaction != ReactionResistant
	return &ExecutionOutcome{
		SuggestionID:   s.suggestionID,
		Personality:    s.personality,
		Success:        success,
		PlayerReaction: reaction,
		MeasuredImpact: MeasuredImpact{
			Performance: s.scores.Impact,
			Engagement:  s.scores.Engagement,
			Learning:    s.scores.Learning,
		},
		FollowUpRequired:   !success,
		Confidence:         confidence,
		ChangeDescriptions: descs,
		MonitoredFor:       elapsed,
	}
}

// StartSweeper runs the expiry sweep loop until Stop is called.
func (m *Monitor) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop terminates the sweeper loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}
