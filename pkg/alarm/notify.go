package alarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/logsift/logsift/pkg/config"
	"github.com/sirupsen/logrus"
)

// Message is a rendered alarm notification.
type Message struct {
	AlarmID     string `json:"alarm_id"`
	AlarmName   string `json:"alarm_name"`
	Description string `json:"description,omitempty"`
	Query       string `json:"query"`
	Condition   string `json:"condition"`
	Metric      int    `json:"metric"`
	WindowMin   int    `json:"window_minutes"`
	TriggeredAt int64  `json:"triggered_at"`
}

// Text renders the message in the classic plain-text alert shape.
func (m *Message) Text() string {
	return fmt.Sprintf(
		"ALARM TRIGGERED: %s\nDescription: %s\nQuery: %s\nCondition: %s\nMetric: %d\nTime Window: %d minutes\nTime: %s",
		m.AlarmName, m.Description, m.Query, m.Condition, m.Metric, m.WindowMin,
		time.UnixMilli(m.TriggeredAt).UTC().Format(time.RFC3339),
	)
}

// Dispatcher delivers one rendered message to one channel. Per-channel
// failures are isolated by the engine; a dispatcher should not retry
// forever.
type Dispatcher interface {
	Send(ctx context.Context, ch Channel, msg *Message) error
}

// LogDispatcher writes notifications to the log. It backs the channel
// types without a wire integration yet (email, slack, pagerduty,
// opsgenie) and is handy in tests.
type LogDispatcher struct {
	log *logrus.Logger
}

// NewLogDispatcher creates a log-backed dispatcher
func NewLogDispatcher(log *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(ctx context.Context, ch Channel, msg *Message) error {
	d.log.WithFields(logrus.Fields{
		"channel":     string(ch.Type),
		"destination": ch.Destination,
		"alarm":       msg.AlarmName,
	}).Info(msg.Text())
	return nil
}

// WebhookDispatcher POSTs the message as JSON to the channel destination,
// retrying transient failures with exponential backoff.
type WebhookDispatcher struct {
	client *http.Client
	log    *logrus.Logger
}

// NewWebhookDispatcher creates a webhook dispatcher
func NewWebhookDispatcher(log *logrus.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		client: &http.Client{Timeout: config.NotifyTimeout},
		log:    log,
	}
}

func (d *WebhookDispatcher) Send(ctx context.Context, ch Channel, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.Destination, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// Client errors will not get better on retry.
			return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = config.NotifyMaxRetryElapsed
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("webhook delivery to %s failed: %w", ch.Destination, err)
	}
	return nil
}

// Router picks a dispatcher per channel type. Webhook-style channels go
// over HTTP; everything else is logged until a real integration lands.
type Router struct {
	webhook  Dispatcher
	fallback Dispatcher
}

// NewRouter creates the default channel router
func NewRouter(log *logrus.Logger) *Router {
	return &Router{
		webhook:  NewWebhookDispatcher(log),
		fallback: NewLogDispatcher(log),
	}
}

func (r *Router) Send(ctx context.Context, ch Channel, msg *Message) error {
	switch ch.Type {
	case ChannelWebhook:
		return r.webhook.Send(ctx, ch, msg)
	case ChannelEmail, ChannelSlack, ChannelPagerDuty, ChannelOpsGenie:
		return r.fallback.Send(ctx, ch, msg)
	default:
		return fmt.Errorf("unsupported notification channel type %q", ch.Type)
	}
}
