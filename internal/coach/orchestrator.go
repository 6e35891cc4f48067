// internal/coach/orchestrator.go
package coach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"fragcoach/internal/config"
	"fragcoach/internal/decision"
	"fragcoach/internal/feedback"
	"fragcoach/internal/gamestate"
	"fragcoach/internal/monitor"
	"fragcoach/internal/output"
	"fragcoach/internal/tools"
)

// ProcessingState is the orchestrator lifecycle state.
type ProcessingState string

const (
	StateCreated     ProcessingState = "created"
	StateInitialized ProcessingState = "initialized"
	StateRunning     ProcessingState = "running"
	StateStopped     ProcessingState = "stopped"
	StateDisposed    ProcessingState = "disposed"
)

var (
	ErrInvalidState = errors.New("operation not valid in current state")
	ErrDisposed     = errors.New("orchestrator disposed")
)

// Personalities lists the coaching voices the feedback loop selects among.
var Personalities = []string{"supportive", "analytical", "direct"}

// Memory is the coach-facing slice of the memory collaborator. Implementations
// are eventually-consistent external storage; the coach tolerates not-found
// and treats write failures as non-fatal.
type Memory interface {
	ContextualMemories(ctx context.Context, steamID, situation string, limit int) ([]string, error)
	RecordCoaching(ctx context.Context, steamID string, out *output.CoachingOutput, d *decision.AIDecision) error
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	FramesProcessed   int64     `json:"frames_processed"`
	FramesSkipped     int64     `json:"frames_skipped"`
	DecisionsMade     int64     `json:"decisions_made"`
	DecisionsDropped  int64     `json:"decisions_dropped"`
	DecisionsDeferred int64     `json:"decisions_deferred"`
	Executions        int64     `json:"executions"`
	Outputs           int64     `json:"outputs"`
	ActiveMonitoring  int       `json:"active_monitoring"`
	LastFrameAt       time.Time `json:"last_frame_at"`
}

// HealthStatus reports liveness for the health endpoint.
type HealthStatus struct {
	State            ProcessingState `json:"state"`
	Healthy          bool            `json:"healthy"`
	ActiveMonitoring int             `json:"active_monitoring"`
	LastFrameAt      time.Time       `json:"last_frame_at"`
}

// cycleInput is one deferred decision cycle waiting for a concurrency slot.
type cycleInput struct {
	snap     *gamestate.GameStateSnapshot
	recent   []*gamestate.GameStateSnapshot
	patterns []string
}

// Orchestrator wires the coaching pipeline into one control loop: telemetry
// in, snapshots to history, decisions to the executor, outputs to delivery,
// delivered outputs to the effectiveness monitor, outcomes to the feedback
// loop.
type Orchestrator struct {
	cfg config.CoachConfig

	builder    *gamestate.SnapshotBuilder
	engine     *decision.Engine
	registry   *tools.Registry
	executor   *tools.Executor
	formatter  *output.Formatter
	dispatcher *output.Dispatcher
	monitor    *monitor.Monitor
	feedback   *feedback.Loop
	memory     Memory
	sink       gamestate.SnapshotSink

	bus *eventBus

	// procMu serializes frame ingestion so snapshots enter history in
	// strictly increasing sequence order.
	procMu   sync.Mutex
	history  *gamestate.History
	prevSnap *gamestate.GameStateSnapshot
	matchKey string

	stateMu sync.Mutex
	state   ProcessingState

	inflight  chan struct{}
	pendingMu sync.Mutex
	pending   *cycleInput

	outMu             sync.Mutex
	outputPersonality map[string]string

	statsMu sync.Mutex
	stats   Stats

	sweepInterval time.Duration
	sweeperOnce   sync.Once
	wg            sync.WaitGroup
}

// New builds an orchestrator and the monitor/feedback pair it owns. registry
// must carry the analysis tools; dispatcher, mem and sink may be nil.
func New(cfg *config.Config, registry *tools.Registry, dispatcher *output.Dispatcher, mem Memory, sink gamestate.SnapshotSink) *Orchestrator {
	if dispatcher == nil {
		dispatcher = output.NewDispatcher(output.LogDeliverer{})
	}

	loop := feedback.NewLoop(cfg.Feedback.LearningRate)
	o := &Orchestrator{
		cfg:               cfg.Coach,
		builder:           gamestate.NewSnapshotBuilder(nil),
		registry:          registry,
		executor:          tools.NewExecutor(registry),
		formatter:         output.NewFormatter(),
		dispatcher:        dispatcher,
		feedback:          loop,
		memory:            mem,
		sink:              sink,
		bus:               newEventBus(),
		state:             StateCreated,
		inflight:          make(chan struct{}, cfg.Coach.MaxConcurrentDecisions),
		outputPersonality: make(map[string]string),
		sweepInterval:     time.Duration(cfg.Monitor.SweepIntervalSeconds) * time.Second,
	}
	o.engine = decision.NewEngine(registry.Has)
	o.monitor = monitor.New(monitorConfig(cfg.Monitor), loop, func(err error) {
		o.bus.Publish(EventError, err.Error())
	})
	return o
}

func monitorConfig(mc config.MonitorConfig) monitor.Config {
	c := monitor.DefaultConfig()
	c.MinMonitoringTime = time.Duration(mc.MinMonitoringSeconds) * time.Second
	c.MaxMonitoringTime = time.Duration(mc.MaxMonitoringSeconds) * time.Second
	c.SignificanceThreshold = mc.SignificanceThreshold
	c.LearningThreshold = mc.LearningThreshold
	c.EngagementThreshold = mc.EngagementThreshold
	c.Decay = time.Duration(mc.DecaySeconds * float64(time.Second))
	c.MaxSessions = mc.MaxSessions
	return c
}

// Monitor exposes the owned effectiveness monitor (health endpoints, tests).
func (o *Orchestrator) Monitor() *monitor.Monitor { return o.monitor }

// FeedbackLoop exposes the owned feedback loop.
func (o *Orchestrator) FeedbackLoop() *feedback.Loop { return o.feedback }

// Subscribe attaches a consumer to the orchestrator event stream.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	return o.bus.Subscribe()
}

// Initialize validates collaborators and moves to initialized.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if o.state != StateCreated {
		return fmt.Errorf("%w: initialize from %s", ErrInvalidState, o.state)
	}
	if o.registry == nil || len(o.registry.List()) == 0 {
		return errors.New("tool registry is empty")
	}
	o.setStateLocked(StateInitialized)
	return nil
}

// Start begins accepting telemetry.
func (o *Orchestrator) Start() error {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	switch o.state {
	case StateInitialized, StateStopped:
	case StateDisposed:
		return ErrDisposed
	default:
		return fmt.Errorf("%w: start from %s", ErrInvalidState, o.state)
	}
	o.sweeperOnce.Do(func() { o.monitor.StartSweeper(o.sweepInterval) })
	o.setStateLocked(StateRunning)
	return nil
}

// Stop pauses telemetry processing. Outstanding monitoring sessions keep
// running so feedback from already-delivered advice is not lost.
func (o *Orchestrator) Stop() error {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if o.state != StateRunning {
		return fmt.Errorf("%w: stop from %s", ErrInvalidState, o.state)
	}
	o.setStateLocked(StateStopped)
	return nil
}

// Dispose tears everything down: flushes partial feedback, stops the sweeper
// and closes the event stream. Terminal.
func (o *Orchestrator) Dispose() {
	o.stateMu.Lock()
	if o.state == StateDisposed {
		o.stateMu.Unlock()
		return
	}
	o.setStateLocked(StateDisposed)
	o.stateMu.Unlock()

	o.monitor.ForceCompleteAll("orchestrator disposed")
	o.monitor.Stop()
	o.wg.Wait()
	o.bus.Close()
}

// setStateLocked transitions and emits state-changed. Caller holds stateMu.
func (o *Orchestrator) setStateLocked(s ProcessingState) {
	if o.state == s {
		return
	}
	log.Printf("[Orchestrator] State %s -> %s", o.state, s)
	o.state = s
	o.bus.Publish(EventStateChanged, string(s))
}

// CurrentState returns the lifecycle state.
func (o *Orchestrator) CurrentState() ProcessingState {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state
}

// ProcessGSIUpdate ingests one raw telemetry frame. Malformed frames are
// skipped, never fatal; stale frames (non-increasing sequence) are dropped so
// decisions always see snapshots in order.
func (o *Orchestrator) ProcessGSIUpdate(ctx context.Context, raw *gamestate.RawFrame) error {
	if o.CurrentState() != StateRunning {
		return fmt.Errorf("%w: not running", ErrInvalidState)
	}

	o.procMu.Lock()
	snap := o.builder.Build(raw, o.prevSnap)
	if snap == nil {
		o.procMu.Unlock()
		o.bumpSkipped()
		return nil
	}

	key := raw.Map.Name + "|" + raw.Player.SteamID
	if key != o.matchKey {
		o.beginMatchLocked(key, raw.Map.Name)
	}

	changes := gamestate.Diff(o.prevSnap, snap)
	if err := o.history.Append(ctx, snap); err != nil {
		o.procMu.Unlock()
		log.Printf("[Orchestrator] Dropping frame: %v", err)
		o.bumpSkipped()
		return nil
	}
	o.prevSnap = snap
	recent := o.history.Recent(16)
	patterns := o.history.DetectPatterns(16)
	o.procMu.Unlock()

	o.statsMu.Lock()
	o.stats.FramesProcessed++
	o.stats.LastFrameAt = snap.Timestamp
	o.statsMu.Unlock()

	// Every outstanding suggestion gets the same game evidence.
	o.monitor.RecordCheckpointAll(changes)

	if o.shouldDecide(snap, patterns) {
		o.scheduleCycle(&cycleInput{snap: snap, recent: recent, patterns: patterns})
	}
	return nil
}

// beginMatchLocked rolls state over to a new match. Caller holds procMu.
func (o *Orchestrator) beginMatchLocked(key, mapName string) {
	if o.history != nil {
		log.Printf("[Orchestrator] Match changed (%s), flushing monitoring sessions", mapName)
		o.monitor.ForceCompleteAll("match ended")
	}
	o.matchKey = key
	o.prevSnap = nil
	o.history = gamestate.NewHistory(key, o.cfg.HistoryWindow, o.sink)
}

func (o *Orchestrator) shouldDecide(snap *gamestate.GameStateSnapshot, patterns []string) bool {
	switch snap.Context {
	case gamestate.ContextCriticalSituation, gamestate.ContextRoundStart:
		return true
	}
	return len(patterns) > 0
}

// scheduleCycle runs a decision cycle if a concurrency slot is free.
// Over-cap cycles are either deferred (latest wins, replayed when a slot
// frees) or dropped, per configuration.
func (o *Orchestrator) scheduleCycle(in *cycleInput) {
	select {
	case o.inflight <- struct{}{}:
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			defer o.releaseSlot()
			o.runCycle(in)
		}()
	default:
		o.statsMu.Lock()
		if o.cfg.DeferOverCap {
			o.stats.DecisionsDeferred++
		} else {
			o.stats.DecisionsDropped++
		}
		o.statsMu.Unlock()
		if o.cfg.DeferOverCap {
			o.pendingMu.Lock()
			o.pending = in
			o.pendingMu.Unlock()
			log.Printf("[Orchestrator] Concurrency cap reached, deferring cycle for seq %d", in.snap.SequenceID)
		} else {
			log.Printf("[Orchestrator] Concurrency cap reached, dropping cycle for seq %d", in.snap.SequenceID)
		}
	}
}

func (o *Orchestrator) releaseSlot() {
	<-o.inflight

	o.pendingMu.Lock()
	in := o.pending
	o.pending = nil
	o.pendingMu.Unlock()
	if in != nil && o.CurrentState() == StateRunning {
		o.scheduleCycle(in)
	}
}

// runCycle performs one full decide-execute-deliver-monitor pass.
func (o *Orchestrator) runCycle(in *cycleInput) {
	timeout := time.Duration(o.cfg.MaxProcessingMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	personality := o.feedback.SelectPersonality(Personalities)
	dc := &decision.Context{
		Snapshot:    in.snap,
		Recent:      in.recent,
		Patterns:    in.patterns,
		Memories:    o.loadMemories(ctx, in),
		Personality: personality,
		Limits: decision.ResourceLimits{
			MaxToolCalls:           o.cfg.MaxToolCalls,
			MaxProcessingTime:      timeout,
			MaxConcurrentDecisions: o.cfg.MaxConcurrentDecisions,
			AllowExternalCalls:     o.cfg.AllowExternalCalls,
		},
	}

	decisions, err := o.engine.AnalyzeContext(ctx, dc)
	if err != nil {
		o.publishError(fmt.Errorf("decision cycle failed: %w", err))
		return
	}

	for _, d := range decisions {
		o.bus.Publish(EventDecisionMade, d)
		o.statsMu.Lock()
		o.stats.DecisionsMade++
		o.statsMu.Unlock()

		res, err := o.executor.ExecuteChain(ctx, d.ToolChain)
		if err != nil {
			o.publishError(fmt.Errorf("chain execution for decision %s failed: %w", d.ID, err))
			continue
		}
		o.statsMu.Lock()
		o.stats.Executions++
		o.statsMu.Unlock()
		o.bus.Publish(EventExecutionCompleted, map[string]interface{}{
			"decision_id":  d.ID,
			"success":      res.Success,
			"success_rate": res.SuccessRate,
		})

		out, err := o.formatter.Format(d, res, personality)
		if err != nil {
			log.Printf("[Orchestrator] Decision %s produced no output: %v", d.ID, err)
			continue
		}
		o.deliver(ctx, in.snap, d, out, personality)
	}
}

func (o *Orchestrator) deliver(ctx context.Context, snap *gamestate.GameStateSnapshot, d *decision.AIDecision, out *output.CoachingOutput, personality string) {
	if o.dispatcher != nil {
		o.dispatcher.Dispatch(out)
	}
	o.statsMu.Lock()
	o.stats.Outputs++
	o.statsMu.Unlock()
	o.bus.Publish(EventOutputGenerated, out)

	o.outMu.Lock()
	// Bounded: old entries only matter while feedback for them can still
	// arrive.
	if len(o.outputPersonality) >= 256 {
		o.outputPersonality = make(map[string]string)
	}
	o.outputPersonality[out.ID] = personality
	o.outMu.Unlock()

	if _, err := o.monitor.StartMonitoring(out.ID, personality); err != nil {
		log.Printf("[Orchestrator] Not monitoring output %s: %v", out.ID, err)
	}
	if o.memory != nil {
		if err := o.memory.RecordCoaching(ctx, snap.Player.SteamID, out, d); err != nil {
			log.Printf("[Orchestrator] WARNING: failed to store coaching record: %v", err)
		}
	}
}

func (o *Orchestrator) loadMemories(ctx context.Context, in *cycleInput) []string {
	if o.memory == nil {
		return nil
	}
	situation := string(in.snap.Context)
	if len(in.patterns) > 0 {
		situation += ": " + in.patterns[0]
	}
	mems, err := o.memory.ContextualMemories(ctx, in.snap.Player.SteamID, situation, 5)
	if err != nil {
		log.Printf("[Orchestrator] Contextual memory lookup failed: %v", err)
		return nil
	}
	return mems
}

func (o *Orchestrator) publishError(err error) {
	log.Printf("[Orchestrator] ERROR: %v", err)
	o.bus.Publish(EventError, err.Error())
}

func (o *Orchestrator) bumpSkipped() {
	o.statsMu.Lock()
	o.stats.FramesSkipped++
	o.statsMu.Unlock()
}

// HandleUserCommand services the user control surface.
func (o *Orchestrator) HandleUserCommand(ctx context.Context, command string) (string, error) {
	switch command {
	case "advice":
		o.procMu.Lock()
		var snap *gamestate.GameStateSnapshot
		var recent []*gamestate.GameStateSnapshot
		var patterns []string
		if o.history != nil {
			snap = o.history.Latest()
			recent = o.history.Recent(16)
			patterns = o.history.DetectPatterns(16)
		}
		o.procMu.Unlock()
		if snap == nil {
			return "", errors.New("no telemetry received yet")
		}
		o.scheduleCycle(&cycleInput{snap: snap, recent: recent, patterns: patterns})
		return "advice cycle scheduled", nil
	case "personality":
		return o.feedback.SelectPersonality(Personalities), nil
	case "stats":
		s := o.GetStats()
		return fmt.Sprintf("frames=%d decisions=%d outputs=%d monitoring=%d",
			s.FramesProcessed, s.DecisionsMade, s.Outputs, s.ActiveMonitoring), nil
	default:
		return "", fmt.Errorf("unknown command %q", command)
	}
}

// HandleUserFeedback records an explicit player rating (0..1) for one
// delivered output.
func (o *Orchestrator) HandleUserFeedback(outputID string, rating float64) error {
	o.outMu.Lock()
	personality, ok := o.outputPersonality[outputID]
	o.outMu.Unlock()
	if !ok {
		return fmt.Errorf("unknown output %s", outputID)
	}
	o.feedback.RecordRating(personality, rating)
	return nil
}

// LatestSnapshot returns the newest snapshot of the current match, or nil.
func (o *Orchestrator) LatestSnapshot() *gamestate.GameStateSnapshot {
	o.procMu.Lock()
	defer o.procMu.Unlock()
	if o.history == nil {
		return nil
	}
	return o.history.Latest()
}

// GetStats returns a counter snapshot.
func (o *Orchestrator) GetStats() Stats {
	o.statsMu.Lock()
	s := o.stats
	o.statsMu.Unlock()
	s.ActiveMonitoring = o.monitor.ActiveSessions()
	return s
}

// GetHealthStatus reports liveness.
func (o *Orchestrator) GetHealthStatus() HealthStatus {
	s := o.GetStats()
	state := o.CurrentState()
	return HealthStatus{
		State:            state,
		Healthy:          state == StateRunning,
		ActiveMonitoring: s.ActiveMonitoring,
		LastFrameAt:      s.LastFrameAt,
	}
}
