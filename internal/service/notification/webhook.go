package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/karmen87/Crypto-Alarm/internal/service/monitor"
)

// WebhookSink POSTs triggered alarms to a configured endpoint.
type WebhookSink struct {
	url string
	cli *http.Client
}

var _ monitor.Sink = (*WebhookSink)(nil)

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url: url,
		cli: &http.Client{Timeout: time.Second * 10},
	}
}

func (s *WebhookSink) Publish(ctx context.Context, event string, payload any) {
	if event != monitor.EventAlarmTriggered {
		return
	}

	body, err := json.Marshal(map[string]any{
		"event": event,
		"data":  payload,
	})
	if err != nil {
		slog.Error("failed to encode webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cli.Do(req)
	if err != nil {
		slog.Error("failed to send webhook", "url", s.url, "error", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		slog.Error("webhook rejected", "url", s.url, "status", resp.StatusCode)
	}
}
