// internal/tools/registry.go
package tools

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Registry manages all available tools. Each tool runs behind its own
// circuit breaker so one flapping provider cannot slow the whole chain.
type Registry struct {
	tools    map[string]Tool
	breakers map[string]*CircuitBreaker
	mu       sync.RWMutex

	failureThreshold int
	breakerTimeout   time.Duration
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools:            make(map[string]Tool),
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: 3,
		breakerTimeout:   30 * time.Second,
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	r.tools[name] = tool
	r.breakers[name] = NewCircuitBreaker(r.failureThreshold, r.breakerTimeout)
	log.Printf("[ToolRegistry] Registered tool: %s - %s", name, tool.Description())
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}

	return tool, nil
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

// Execute runs a tool with the given parameters under a timeout. Failures,
// timeouts and breaker rejections all come back as a failed ToolResult plus
// an error; the executor decides whether to retry or fall back.
func (r *Registry) Execute(ctx context.Context, toolName string, params map[string]interface{}, timeout time.Duration) (*ToolResult, error) {
	tool, err := r.Get(toolName)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	breaker := r.breakers[toolName]
	r.mu.RUnlock()

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	var result *ToolResult
	callErr := breaker.Call(func() error {
		var execErr error
		result, execErr = tool.Execute(timeoutCtx, params)
		if execErr != nil {
			return execErr
		}
		if result != nil && !result.Success {
			return fmt.Errorf("tool reported failure: %s", result.Error)
		}
		return nil
	})
	duration := time.Since(startTime)

	if callErr != nil {
		log.Printf("[ToolRegistry] Tool '%s' failed after %s: %v", toolName, duration, callErr)
		if result == nil {
			result = &ToolResult{Success: false, Error: callErr.Error()}
		}
		result.Duration = duration
		return result, callErr
	}

	result.Duration = duration
	log.Printf("[ToolRegistry] Tool '%s' completed in %s", toolName, duration)
	return result, nil
}

// List returns all registered tool names and descriptions
func (r *Registry) List() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make(map[string]string)
	for name, tool := range r.tools {
		list[name] = tool.Description()
	}
	return list
}

// BreakerStats returns per-tool circuit breaker statistics for health checks.
func (r *Registry) BreakerStats() map[string]map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]map[string]interface{}, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.Stats()
	}
	return stats
}
