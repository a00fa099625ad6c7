// Package notify delivers fire-and-forget user notifications to the
// notification service.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Message struct {
	UserID  uuid.UUID  `json:"user_id"`
	ActorID *uuid.UUID `json:"actor_id,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Link    string     `json:"link,omitempty"`
}

// Notifier never reports failure to the caller; delivery problems are logged.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// LogNotifier only logs messages. Used when no sink is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) {
	n.log.Info().
		Str("user_id", msg.UserID.String()).
		Str("title", msg.Title).
		Str("link", msg.Link).
		Msg("notification")
}

// WebhookNotifier posts each message as JSON to the notification service.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func NewWebhookNotifier(url string, log zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

// Notify sends asynchronously, detached from the request context.
func (n *WebhookNotifier) Notify(_ context.Context, msg Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Send(ctx, msg); err != nil {
			n.log.Warn().Err(err).Str("user_id", msg.UserID.String()).Str("title", msg.Title).Msg("notification delivery failed")
		}
	}()
}

// Send delivers one message synchronously.
func (n *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification sink returned %d", resp.StatusCode)
	}
	return nil
}
