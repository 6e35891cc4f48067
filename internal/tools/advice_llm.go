// internal/tools/advice_llm.go
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AdviceLLMTool asks an OpenAI-compatible chat endpoint for a short coaching
// line. It is the highest-quality and slowest advice source; decisions pair
// it with a heuristic fallback.
type AdviceLLMTool struct {
	url    string
	model  string
	client *http.Client
}

// NewAdviceLLMTool creates the LLM advice tool.
func NewAdviceLLMTool(url, model string) *AdviceLLMTool {
	return &AdviceLLMTool{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *AdviceLLMTool) Name() string { return ToolNameAdviceLLM }

func (t *AdviceLLMTool) Description() string {
	return "Generates a short coaching line from the current situation via LLM"
}

func (t *AdviceLLMTool) External() bool { return true }

func (t *AdviceLLMTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	situation, _ := params["situation"].(string)
	if situation == "" {
		return nil, fmt.Errorf("missing 'situation' parameter")
	}
	persona, _ := params["personality"].(string)
	if persona == "" {
		persona = "supportive"
	}

	prompt := fmt.Sprintf(
		"You are a %s esports coach speaking to a player mid-match. Situation: %s\nGive ONE actionable tip in at most 20 words.",
		persona, situation)

	reqBody := map[string]interface{}{
		"model": t.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a concise in-game coach. Never exceed 20 words."},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.3,
		"stream":      false,
	}

	payload, err := json.Marshal(reqBody)
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
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("LLM returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode LLM response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	advice := strings.TrimSpace(parsed.Choices[0].Message.Content)
	return &ToolResult{
		Success: true,
		Output:  advice,
		Metadata: map[string]interface{}{
			"model": t.model,
		},
	}, nil
}
