package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gradewise/moderation-server/internal/moderation"
)

// Webhook delivers moderation domain events to an external HTTP endpoint as
// JSON POST requests. Delivery is best effort: a failure is logged and the
// event is dropped, it never reaches back into the moderation transaction.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook - a webhook notifier posting to the given URL.
func NewWebhook(url string, client *http.Client, logger *slog.Logger) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}

	return &Webhook{
		url:    url,
		client: client,
		logger: logger,
	}
}

// Notify implements moderation.Subscriber.
func (n *Webhook) Notify(event moderation.Event) {
	ctx := context.Background()

	body, err := json.Marshal(event)
	if err != nil {
		n.logger.ErrorContext(ctx, "encoding event failed",
			slog.String("event", string(event.Name)),
			slog.String("error", err.Error()),
		)

		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.ErrorContext(ctx, "building webhook request failed",
			slog.String("error", err.Error()),
		)

		return
	}

	req.Header.Set("Content-Type", "application/json")

	rsp, err := n.client.Do(req)
	if err != nil {
		n.logger.WarnContext(ctx, "webhook delivery failed",
			slog.String("event", string(event.Name)),
			slog.String("error", err.Error()),
		)

		return
	}

	defer rsp.Body.Close()
	_, _ = io.Copy(io.Discard, rsp.Body)

	if rsp.StatusCode >= http.StatusMultipleChoices {
		n.logger.WarnContext(ctx, "webhook delivery rejected",
			slog.String("event", string(event.Name)),
			slog.String("status", fmt.Sprintf("%d", rsp.StatusCode)),
		)

		return
	}

	n.logger.DebugContext(ctx, "webhook delivered",
		slog.String("event", string(event.Name)),
		slog.Int64("user_id", event.UserID.ToInt64()),
	)
}
