// internal/tools/tts_queue.go
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TTSQueueTool enqueues a line on the local text-to-speech sidecar. Speaking
// is a side effect, which is why identical steps across decisions in the same
// cycle must be collapsed before execution.
type TTSQueueTool struct {
	url    string
	client *http.Client
}

// NewTTSQueueTool creates the TTS enqueue tool.
func NewTTSQueueTool(url string) *TTSQueueTool {
	return &TTSQueueTool{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (t *TTSQueueTool) Name() string { return ToolNameTTSQueue }

func (t *TTSQueueTool) Description() string {
	return "Queues a coaching line on the text-to-speech sidecar"
}

func (t *TTSQueueTool) External() bool { return true }

func (t *TTSQueueTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	text, _ := params["text"].(string)
	if text == "" {
		return nil, fmt.Errorf("missing 'text' parameter")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"text":     text,
		"priority": params["priority"],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("TTS returned status %d", resp.StatusCode)
	}

	return &ToolResult{Success: true, Output: "queued"}, nil
}
