// Package alerting forwards failed agent invocations to operator channels.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/nuyoahch/agent-runtime/internal/config"
	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

// Channel names a notification target.
type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelSlack   Channel = "slack"
)

// Event describes one alert-worthy failure.
type Event struct {
	Code         xerrors.Code      `json:"code"`
	Message      string            `json:"message"`
	Severity     xerrors.Severity  `json:"severity"`
	InvocationID string            `json:"invocation_id"`
	ThreadID     string            `json:"thread_id"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// FromError builds an alert event from a coded error.
func FromError(invocationID, threadID string, err error) Event {
	event := Event{
		Code:         xerrors.CodeOf(err),
		Severity:     xerrors.SeverityOf(err),
		InvocationID: invocationID,
		ThreadID:     threadID,
		OccurredAt:   time.Now().UTC(),
	}
	if err != nil {
		event.Message = err.Error()
	}
	if coded, ok := xerrors.From(err); ok {
		event.Metadata = coded.Metadata()
	}
	return event
}

// Notifier delivers events to one channel.
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher broadcasts an event.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher sends each event to every registered channel.
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout keeps at most one notifier per channel; nil notifiers are skipped.
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Len reports how many channels are registered.
func (d *FanoutDispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.notifiers)
}

// Notify delivers to all channels and joins their failures.
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// WebhookNotifier posts the event as JSON.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.URL == "" {
		logger.L().Warn("webhook notifier not configured, skipping", "invocation_id", event.InvocationID)
		return nil
	}
	return postJSON(ctx, n.Client, n.URL, event)
}

// SlackNotifier posts a summary to a Slack incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.WebhookURL == "" {
		logger.L().Warn("slack notifier not configured, skipping", "invocation_id", event.InvocationID)
		return nil
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.WebhookURL, client, slackMessage(event)); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

func slackMessage(event Event) *slack.WebhookMessage {
	color := "warning"
	if event.Severity == xerrors.SeverityCritical {
		color = "danger"
	}
	return &slack.WebhookMessage{
		Text: fmt.Sprintf("*[%s]* %s: %s", event.Severity, event.Code, event.Message),
		Attachments: []slack.Attachment{{
			Color: color,
			Fields: []slack.AttachmentField{
				{Title: "Thread", Value: event.ThreadID, Short: true},
				{Title: "Invocation", Value: event.InvocationID, Short: true},
			},
		}},
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned %s", resp.Status)
	}
	return nil
}

// New builds a dispatcher from the configured channels. It returns nil when
// no channel is set.
func New(cfg config.AlertingConfig) Dispatcher {
	client := &http.Client{Timeout: cfg.Timeout()}
	var notifiers []Notifier
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &WebhookNotifier{URL: cfg.WebhookURL, Client: client})
	}
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, &SlackNotifier{WebhookURL: cfg.SlackWebhookURL, Client: client})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return NewFanout(notifiers...)
}
