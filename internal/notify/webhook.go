package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// WebhookNotifier posts alerts as JSON to a configured webhook URL. With no
// URL configured, permission is denied and every Send is a silent no-op.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	granted    bool
}

type webhookPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) RequestPermission(_ context.Context) bool {
	n.granted = n.url != ""
	if !n.granted {
		log.Warn().Msg("No notification webhook configured, alerts will be suppressed")
	}
	return n.granted
}

func (n *WebhookNotifier) Send(ctx context.Context, title, body string) {
	if !n.granted {
		return
	}

	payload, err := json.Marshal(webhookPayload{Title: title, Body: body})
	if err != nil {
		log.Error().Err(err).Msg("Encoding notification payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("Building notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Notification delivery failed")
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			return
		}
	}()

	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg("Notification webhook rejected alert")
	}
}
