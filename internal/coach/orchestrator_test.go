// internal/coach/orchestrator_test.go
package coach

import (
	"context"
	"testing"
	"time"

	"fragcoach/internal/config"
	"fragcoach/internal/gamestate"
	"fragcoach/internal/output"
	"fragcoach/internal/tools"
)

type stubTool struct {
	name     string
	out      string
	external bool
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) External() bool      { return s.external }
func (s *stubTool) Execute(ctx context.Context, params map[string]interface{}) (*tools.ToolResult, error) {
	return &tools.ToolResult{Success: true, Output: s.out}, nil
}

type chanDeliverer struct {
	ch chan *output.CoachingOutput
}

func (c *chanDeliverer) Deliver(out *output.CoachingOutput) error {
	c.ch <- out
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Monitor = config.MonitorConfig{
		MinMonitoringSeconds:  10,
		MaxMonitoringSeconds:  60,
		SignificanceThreshold: 0.3,
		LearningThreshold:     0.6,
		EngagementThreshold:   0.6,
		DecaySeconds:          30,
		MaxSessions:           8,
		SweepIntervalSeconds:  15,
	}
	cfg.Feedback.LearningRate = 0.1
	cfg.Coach = config.CoachConfig{
		MaxConcurrentDecisions: 2,
		MaxToolCalls:           6,
		MaxProcessingMs:        2000,
		HistoryWindow:          32,
	}
	return cfg
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	for _, tool := range []*stubTool{
		{name: tools.ToolNamePositioning, out: "Fall back and play for the retake"},
		{name: tools.ToolNameEconomy, out: "Save this round, full buy next"},
	} {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	return reg
}

func frame(steamID, mapName, phase string, health, money int) *gamestate.RawFrame {
	f := &gamestate.RawFrame{}
	f.Player.SteamID = steamID
	f.Player.Name = "tester"
	f.Player.Team = "CT"
	f.Player.State.Health = health
	f.Player.State.Money = money
	f.Map.Name = mapName
	f.Map.Round = 3
	f.Round.Phase = phase
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestOrchestrator_Lifecycle(t *testing.T) {
	o := New(testConfig(), testRegistry(t), nil, nil, nil)
	defer o.Dispose()

	if o.CurrentState() != StateCreated {
		t.Fatalf("Expected created, got %s", o.CurrentState())
	}
	if err := o.Start(); err == nil {
		t.Error("Start before Initialize should fail")
	}
	if err := o.ProcessGSIUpdate(context.Background(), frame("s1", "de_mirage", "live", 100, 3000)); err == nil {
		t.Error("ProcessGSIUpdate before running should fail")
	}

	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if o.CurrentState() != StateRunning {
		t.Errorf("Expected running, got %s", o.CurrentState())
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Restart after stop failed: %v", err)
	}
}

func TestOrchestrator_MalformedFrameSkipped(t *testing.T) {
	o := New(testConfig(), testRegistry(t), nil, nil, nil)
	defer o.Dispose()
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// No steam id: skippable, never fatal.
	bad := frame("", "de_mirage", "live", 100, 3000)
	if err := o.ProcessGSIUpdate(context.Background(), bad); err != nil {
		t.Fatalf("Malformed frame should not error: %v", err)
	}
	s := o.GetStats()
	if s.FramesSkipped != 1 || s.FramesProcessed != 0 {
		t.Errorf("Expected 1 skipped / 0 processed, got %d / %d", s.FramesSkipped, s.FramesProcessed)
	}
}

// Full flow: a heavy health drop flips the context to critical_situation, an
// immediate decision executes its chain, the output is delivered with
// immediate timing and effectiveness monitoring opens for it.
func TestOrchestrator_FullFlow(t *testing.T) {
	delivered := &chanDeliverer{ch: make(chan *output.CoachingOutput, 4)}
	o := New(testConfig(), testRegistry(t), output.NewDispatcher(delivered), nil, nil)
	defer o.Dispose()

	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx := context.Background()
	if err := o.ProcessGSIUpdate(ctx, frame("s1", "de_mirage", "live", 100, 3000)); err != nil {
		t.Fatalf("Frame 1 failed: %v", err)
	}
	if err := o.ProcessGSIUpdate(ctx, frame("s1", "de_mirage", "live", 20, 3000)); err != nil {
		t.Fatalf("Frame 2 failed: %v", err)
	}

	var out *output.CoachingOutput
	select {
	case out = <-delivered.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("No output delivered")
	}

	if !out.Timing.Immediate {
		t.Errorf("Critical situation should yield immediate timing, got %+v", out.Timing)
	}
	if out.Type != output.TypeTacticalAdvice {
		t.Errorf("Expected tactical_advice, got %s", out.Type)
	}
	if out.Message != "Fall back and play for the retake" {
		t.Errorf("Unexpected message: %q", out.Message)
	}

	waitFor(t, "monitoring session", func() bool {
		return o.Monitor().ActiveSessions() == 1
	})

	// The explicit rating path reaches the feedback loop via the recorded
	// output personality.
	waitFor(t, "feedback acceptance", func() bool {
		return o.HandleUserFeedback(out.ID, 0.9) == nil
	})
	if err := o.HandleUserFeedback("no-such-output", 0.5); err == nil {
		t.Error("Unknown output id should be rejected")
	}

	s := o.GetStats()
	if s.DecisionsMade == 0 || s.Executions == 0 || s.Outputs == 0 {
		t.Errorf("Counters not advanced: %+v", s)
	}
}

func TestOrchestrator_MatchChangeFlushesMonitoring(t *testing.T) {
	delivered := &chanDeliverer{ch: make(chan *output.CoachingOutput, 4)}
	o := New(testConfig(), testRegistry(t), output.NewDispatcher(delivered), nil, nil)
	defer o.Dispose()

	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx := context.Background()
	if err := o.ProcessGSIUpdate(ctx, frame("s1", "de_mirage", "live", 100, 3000)); err != nil {
		t.Fatalf("Frame 1 failed: %v", err)
	}
	if err := o.ProcessGSIUpdate(ctx, frame("s1", "de_mirage", "live", 20, 3000)); err != nil {
		t.Fatalf("Frame 2 failed: %v", err)
	}
	<-delivered.ch
	waitFor(t, "monitoring session", func() bool {
		return o.Monitor().ActiveSessions() == 1
	})

	// New map: previous match's sessions flush rather than leak.
	if err := o.ProcessGSIUpdate(ctx, frame("s1", "de_inferno", "live", 100, 3000)); err != nil {
		t.Fatalf("Map-change frame failed: %v", err)
	}
	if n := o.Monitor().ActiveSessions(); n != 0 {
		t.Errorf("Expected 0 sessions after match change, got %d", n)
	}
}

func TestOrchestrator_EventStream(t *testing.T) {
	o := New(testConfig(), testRegistry(t), nil, nil, nil)
	defer o.Dispose()

	events, unsub := o.Subscribe()
	defer unsub()

	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var seen []Event
	timeout := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-events:
			seen = append(seen, ev)
		case <-timeout:
			t.Fatalf("Only saw %d event(s): %v", len(seen), seen)
		}
	}
	for _, ev := range seen {
		if ev.Type != EventStateChanged {
			t.Errorf("Expected state-changed, got %s", ev.Type)
		}
	}
	if last, ok := seen[1].Payload.(string); !ok || last != string(StateRunning) {
		t.Errorf("Expected running payload, got %v", seen[1].Payload)
	}
}

func TestOrchestrator_UserCommands(t *testing.T) {
	o := New(testConfig(), testRegistry(t), nil, nil, nil)
	defer o.Dispose()
	ctx := context.Background()
	if err := o.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := o.HandleUserCommand(ctx, "advice"); err == nil {
		t.Error("advice with no telemetry should fail")
	}
	if _, err := o.HandleUserCommand(ctx, "bogus"); err == nil {
		t.Error("Unknown command should fail")
	}
	if p, err := o.HandleUserCommand(ctx, "personality"); err != nil || p == "" {
		t.Errorf("personality command failed: %q %v", p, err)
	}

	if err := o.ProcessGSIUpdate(ctx, frame("s1", "de_mirage", "live", 100, 3000)); err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if _, err := o.HandleUserCommand(ctx, "advice"); err != nil {
		t.Errorf("advice with telemetry failed: %v", err)
	}
}

func TestOrchestrator_ConcurrencyCapDrops(t *testing.T) {
	cfg := testConfig()
	cfg.Coach.MaxConcurrentDecisions = 1
	o := New(cfg, testRegistry(t), nil, nil, nil)
	defer o.Dispose()

	// Occupy the only slot, then schedule: the cycle must be dropped, not
	// queued, when deferral is off.
	o.inflight <- struct{}{}
	snap := &gamestate.GameStateSnapshot{SequenceID: 1, Context: gamestate.ContextCriticalSituation}
	o.scheduleCycle(&cycleInput{snap: snap})
	<-o.inflight

	s := o.GetStats()
	if s.DecisionsDropped != 1 {
		t.Errorf("Expected 1 dropped cycle, got %d", s.DecisionsDropped)
	}
}

func TestOrchestrator_ConcurrencyCapDefers(t *testing.T) {
	cfg := testConfig()
	cfg.Coach.MaxConcurrentDecisions = 1
	cfg.Coach.DeferOverCap = true
	o := New(cfg, testRegistry(t), nil, nil, nil)
	defer o.Dispose()

	o.inflight <- struct{}{}
	snap := &gamestate.GameStateSnapshot{SequenceID: 1, Context: gamestate.ContextCriticalSituation}
	o.scheduleCycle(&cycleInput{snap: snap})

	s := o.GetStats()
	if s.DecisionsDeferred != 1 {
		t.Errorf("Expected 1 deferred cycle, got %d", s.DecisionsDeferred)
	}
	o.pendingMu.Lock()
	queued := o.pending != nil
	o.pendingMu.Unlock()
	if !queued {
		t.Error("Deferred cycle should be queued for replay")
	}
	<-o.inflight
}

func TestOrchestrator_DisposeIsTerminal(t *testing.T) {
	o := New(testConfig(), testRegistry(t), nil, nil, nil)
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	o.Dispose()
	if o.CurrentState() != StateDisposed {
		t.Fatalf("Expected disposed, got %s", o.CurrentState())
	}
	if err := o.Start(); err == nil {
		t.Error("Start after dispose should fail")
	}
	// Idempotent.
	o.Dispose()
}
