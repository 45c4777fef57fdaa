package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pep299/autoinsight/internal/vehicle"
)

const defaultBaseURL = "https://slack.com/api"

// Client handles Slack notifications
type Client struct {
	botToken   string
	channel    string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Slack client
func NewClient(botToken, channel string) *Client {
	return &Client{
		botToken: botToken,
		channel:  channel,
		baseURL:  defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ChatPostMessageRequest represents a Slack chat.postMessage request
type ChatPostMessageRequest struct {
	Channel   string `json:"channel"`
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

// SendRiskAlert posts a high-risk vehicle alert to the configured channel
func (c *Client) SendRiskAlert(ctx context.Context, summary vehicle.Summary) error {
	return c.sendMessage(ctx, formatRiskAlert(summary), c.channel)
}

// formatRiskAlert creates the alert text for a summary
func formatRiskAlert(summary vehicle.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: *High-risk vehicle* `%s`\n", summary.VIN)
	fmt.Fprintf(&b, "*Risk score:* %.1f/10 (%s)\n", summary.RiskScore, summary.Source)
	b.WriteString(summary.Summary)
	if len(summary.Reasoning) > 0 {
		b.WriteString("\n")
		for _, line := range summary.Reasoning {
			b.WriteString("\n• ")
			b.WriteString(line)
		}
	}
	return b.String()
}

// sendMessage sends a message to the specified Slack channel
func (c *Client) sendMessage(ctx context.Context, text string, channel string) error {
	req := ChatPostMessageRequest{
		Channel:   channel,
		Text:      text,
		Username:  "AutoInsight",
		IconEmoji: ":car:",
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.botToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&slackResp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if !slackResp.OK {
		return fmt.Errorf("slack API error: %s", slackResp.Error)
	}

	return nil
}
