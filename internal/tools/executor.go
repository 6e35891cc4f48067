// internal/tools/executor.go
package tools

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Executor runs a decision's tool chain against the registry, honoring the
// dependency DAG and the per-step timeout/retry/fallback policy.
type Executor struct {
	registry *Registry

	// sleep is swappable so retry timing is testable without real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor bound to a registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExecuteChain validates and runs the chain. A step starts only after all of
// its dependencies completed, directly or via fallback. A failed step fails
// only its dependents; independent branches keep going. The returned result
// reports partial success through SuccessRate.
func (e *Executor) ExecuteChain(ctx context.Context, steps []ToolChainStep) (*ChainResult, error) {
	if err := ValidateChain(steps, e.registry.Has); err != nil {
		return nil, fmt.Errorf("invalid tool chain: %w", err)
	}

	start := time.Now()
	result := &ChainResult{Steps: make(map[string]*StepResult, len(steps))}

	pending := make(map[string]*ToolChainStep, len(steps))
	for i := range steps {
		pending[steps[i].StepID] = &steps[i]
	}

	var mu sync.Mutex

	for len(pending) > 0 {
		// Collect steps whose dependencies have all resolved.
		var ready []*ToolChainStep
		var blocked []*ToolChainStep
		for _, s := range pending {
			resolved, failed := depState(s, result.Steps)
			switch {
			case failed:
				blocked = append(blocked, s)
			case resolved:
				ready = append(ready, s)
			}
		}

		// Propagate failure to dependents without executing them.
		for _, s := range blocked {
			result.Steps[s.StepID] = &StepResult{
				StepID:   s.StepID,
				ToolName: s.ToolName,
				Success:  false,
				Error:    "dependency failed",
			}
			delete(pending, s.StepID)
			log.Printf("[ToolExecutor] Step %s skipped: dependency failed", s.StepID)
		}

		if len(ready) == 0 {
			if len(blocked) > 0 {
				continue
			}
			// No ready steps and nothing blocked: cannot happen with a
			// validated DAG, bail out rather than spin.
			break
		}

		var wg sync.WaitGroup
		for _, s := range ready {
			wg.Add(1)
			go func(step *ToolChainStep) {
				defer wg.Done()
				sr := e.executeStep(ctx, step)
				mu.Lock()
				result.Steps[step.StepID] = sr
				mu.Unlock()
			}(s)
			delete(pending, s.StepID)
		}
		wg.Wait()

		if ctx.Err() != nil {
			// Mark everything still pending as cancelled.
			for _, s := range pending {
				result.Steps[s.StepID] = &StepResult{
					StepID:   s.StepID,
					ToolName: s.ToolName,
					Success:  false,
					Error:    ctx.Err().Error(),
				}
				delete(pending, s.StepID)
			}
		}
	}

	succeeded := 0
	for _, sr := range result.Steps {
		if sr.Success {
			succeeded++
		}
	}
	result.SuccessRate = float64(succeeded) / float64(len(result.Steps))
	result.Success = succeeded == len(result.Steps)
	result.Duration = time.Since(start)

	log.Printf("[ToolExecutor] Chain completed: %d/%d steps succeeded (%.0f%%) in %s",
		succeeded, len(result.Steps), result.SuccessRate*100, result.Duration)

	return result, nil
}

// depState reports whether all dependencies resolved, and whether any failed.
func depState(s *ToolChainStep, results map[string]*StepResult) (resolved bool, anyFailed bool) {
	for _, dep := range s.Dependencies {
		sr, finished := results[dep]
		if !finished {
			return false, false
		}
		if !sr.Success {
			return false, true
		}
	}
	return true, false
}

// executeStep runs one step: maxRetries+1 attempts with backoff, then the
// fallback tool if configured.
func (e *Executor) executeStep(ctx context.Context, step *ToolChainStep) *StepResult {
	sr := &StepResult{
		StepID:    step.StepID,
		ToolName:  step.ToolName,
		StartedAt: time.Now(),
	}
	defer func() { sr.Duration = time.Since(sr.StartedAt) }()

	maxAttempts := step.Retry.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sr.Attempts = attempt
		res, err := e.registry.Execute(ctx, step.ToolName, step.Input, step.Timeout)
		if err == nil {
			sr.Success = true
			sr.Output = res.Output
			return sr
		}
		lastErr = err
		log.Printf("[ToolExecutor] Step %s attempt %d/%d failed: %v", step.StepID, attempt, maxAttempts, err)

		if attempt < maxAttempts {
			if serr := e.sleep(ctx, BackoffDelay(step.Retry, step.Timeout, attempt)); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	if step.FallbackTool != "" {
		log.Printf("[ToolExecutor] Step %s falling back to tool '%s'", step.StepID, step.FallbackTool)
		res, err := e.registry.Execute(ctx, step.FallbackTool, step.Input, step.Timeout)
		if err == nil {
			sr.Success = true
			sr.UsedFallback = true
			sr.Output = res.Output
			return sr
		}
		lastErr = fmt.Errorf("fallback failed: %w", err)
	}

	sr.Success = false
	if lastErr != nil {
		sr.Error = lastErr.Error()
	}
	return sr
}
