package notifier

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier delivers report text to an external channel.
type Notifier interface {
	Send(text string) error
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// WebhookNotifier posts messages to a Feishu-compatible group webhook.
type WebhookNotifier struct {
	URL    string
	Client *resty.Client
}

// webhookResponse is the bot-platform acknowledgement. A non-zero code means
// the platform accepted the HTTP request but rejected the message.
type webhookResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// NewWebhookNotifier creates a notifier with optional proxy support.
func NewWebhookNotifier(webhookURL, proxyURL string) *WebhookNotifier {
	client := resty.New().SetTimeout(30 * time.Second)
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &WebhookNotifier{URL: webhookURL, Client: client}
}

// Send posts a single text message to the webhook.
func (w *WebhookNotifier) Send(text string) error {
	var ack webhookResponse
	resp, err := w.Client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"msg_type": "text",
			"content":  map[string]string{"text": text},
		}).
		SetResult(&ack).
		Post(w.URL)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	if ack.Code != 0 {
		return fmt.Errorf("webhook rejected message: code %d, msg: %s", ack.Code, ack.Msg)
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (w *WebhookNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := w.Send(text); err != nil {
			lastErr = err
			backoff := time.Duration(1<<uint(i)) * time.Second
			log.Printf("[WARN] webhook send failed (attempt %d/%d): %v, retrying in %v", i+1, maxRetries+1, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}

// Noop is the notifier used when no webhook is configured. Reports land in
// the log instead.
type Noop struct{}

func (Noop) Send(text string) error {
	log.Printf("[INFO] notification (no webhook configured):\n%s", text)
	return nil
}

func (n Noop) SendWithRetry(_ context.Context, text string, _ int) error {
	return n.Send(text)
}
