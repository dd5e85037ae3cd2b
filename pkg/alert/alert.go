// Package alert fans video alerts out to chat and webhook destinations.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Notification is the data sent to alert destinations.
type Notification struct {
	AlertID    int64     `json:"alert_id"`
	AlertType  string    `json:"alert_type"`
	VideoID    string    `json:"video_id"`
	VideoTitle string    `json:"video_title"`
	URL        string    `json:"url"`
	Message    string    `json:"message"`
	Current    int64     `json:"current_value"`
	Threshold  int64     `json:"threshold_value"`
	CreatedAt  time.Time `json:"created_at"`
}

// Headline is a one-line summary used as the message title.
func (n *Notification) Headline() string {
	title := n.VideoTitle
	if title == "" {
		title = n.VideoID
	}
	return fmt.Sprintf("%s %s: %s", icon(n.AlertType), label(n.AlertType), title)
}

// Values renders the current and threshold values with thousands separators.
func (n *Notification) Values() string {
	return fmt.Sprintf("current %s / threshold %s", humanize.Comma(n.Current), humanize.Comma(n.Threshold))
}

func label(alertType string) string {
	switch {
	case strings.HasPrefix(alertType, "growth_"):
		return "Growth"
	case alertType == "100k":
		return "Milestone"
	case alertType == "data_anomaly":
		return "Anomaly"
	}
	return alertType
}

func icon(alertType string) string {
	switch {
	case strings.HasPrefix(alertType, "growth_"):
		return "📈"
	case alertType == "100k":
		return "🏆"
	case alertType == "data_anomaly":
		return "⚠️"
	}
	return "🔔"
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// postJSON posts payload and treats any 2xx as delivered.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, header http.Header) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "vidpulse/1.0")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
