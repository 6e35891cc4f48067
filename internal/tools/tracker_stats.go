// internal/tools/tracker_stats.go
package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// TrackerStatsTool scrapes a player's public stats page and extracts the
// headline stat blocks. Profile layout changes break the selectors, not the
// chain: a failed scrape is an ordinary tool failure.
type TrackerStatsTool struct {
	baseURL string
	client  *http.Client
}

// NewTrackerStatsTool creates the tracker lookup tool.
func NewTrackerStatsTool(baseURL string) *TrackerStatsTool {
	return &TrackerStatsTool{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TrackerStatsTool) Name() string { return ToolNameTrackerStats }

func (t *TrackerStatsTool) Description() string {
	return "Fetches a player's public stats page and extracts headline stats"
}

func (t *TrackerStatsTool) External() bool { return true }

func (t *TrackerStatsTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	playerID, _ := params["player_id"].(string)
	if playerID == "" {
		return nil, fmt.Errorf("missing 'player_id' parameter")
	}

	pageURL := fmt.Sprintf("%s/profile/%s", t.baseURL, url.PathEscape(playerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "fragcoach/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tracker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stats page: %w", err)
	}

	stats := make(map[string]interface{})
	doc.Find(".stat, [class*=stat-block], [data-stat]").Each(func(_ int, s *goquery.Selection) {
		label := strings.TrimSpace(s.Find(".name, .label, [class*=stat-name]").First().Text())
		value := strings.TrimSpace(s.Find(".value, [class*=stat-value]").First().Text())
		if label != "" && value != "" {
			stats[strings.ToLower(label)] = value
		}
	})

	if len(stats) == 0 {
		return nil, fmt.Errorf("no stat blocks found on page")
	}

	var sb strings.Builder
	for label, value := range stats {
		fmt.Fprintf(&sb, "%s: %v; ", label, value)
	}

	return &ToolResult{
		Success:  true,
		Output:   strings.TrimSuffix(sb.String(), "; "),
		Metadata: map[string]interface{}{"stats": stats, "url": pageURL},
	}, nil
}
