package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

// embed colours per alert family
const (
	colorGrowth    = 0x2ECC71
	colorMilestone = 0xF1C40F
	colorAnomaly   = 0xE74C3C
)

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	color := colorGrowth
	switch {
	case n.AlertType == "100k":
		color = colorMilestone
	case n.AlertType == "data_anomaly":
		color = colorAnomaly
	}

	ts := n.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	embed := map[string]any{
		"title":       n.Headline(),
		"description": strings.TrimSpace(fmt.Sprintf("%s\n\n**%s**", n.Message, n.Values())),
		"color":       color,
		"timestamp":   ts.UTC().Format(time.RFC3339),
	}
	if n.URL != "" {
		embed["url"] = n.URL
	}

	payload := map[string]any{"embeds": []map[string]any{embed}}
	if err := postJSON(ctx, d.client, d.webhookURL, payload, nil); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}
