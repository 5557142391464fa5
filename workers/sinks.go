package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reward-engine/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RenderLevelUp fills the scope's template. Recognized placeholders: {user},
// {level}, {levels} and {channel}. Numbers are grouped ("1,000").
func RenderLevelUp(tmpl string, ev models.LevelUpEvent) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = models.DefaultLevelUpTemplate
	}
	p := message.NewPrinter(language.English)
	return strings.NewReplacer(
		"{user}", "<@"+ev.UserID+">",
		"{level}", p.Sprintf("%d", ev.NewLevel),
		"{levels}", p.Sprintf("%d", ev.LevelsGained),
		"{channel}", "<#"+destination(ev)+">",
	).Replace(tmpl)
}

func destination(ev models.LevelUpEvent) string {
	if ev.TargetChannel != "" {
		return ev.TargetChannel
	}
	return ev.ChannelID
}

// LogSink writes the rendered announcement to the log. It is the notifier used
// when no webhook is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, ev models.LevelUpEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("[LEVELUP] "+RenderLevelUp(ev.MessageTemplate, ev),
		"user_id", ev.UserID, "scope_id", ev.ScopeID, "channel_id", destination(ev))
	return nil
}

// WebhookSink posts the event, with its rendered message, to the chat
// gateway's notification endpoint.
type WebhookSink struct {
	URL          string
	ServiceToken string
	HTTPClient   *http.Client
}

func NewWebhookSink(url, serviceToken string) *WebhookSink {
	return &WebhookSink{
		URL:          url,
		ServiceToken: serviceToken,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	models.LevelUpEvent
	Channel string `json:"channel"`
	Message string `json:"message"`
}

func (s *WebhookSink) Deliver(ctx context.Context, ev models.LevelUpEvent) error {
	body, err := json.Marshal(webhookPayload{
		LevelUpEvent: ev,
		Channel:      destination(ev),
		Message:      RenderLevelUp(ev.MessageTemplate, ev),
	})
	if err != nil {
		return fmt.Errorf("encode level-up event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", s.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", s.ServiceToken)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("notifier request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notifier returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
