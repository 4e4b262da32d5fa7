package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nuyoahch/agent-runtime/internal/config"
	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	webhook := &recordingNotifier{channel: ChannelWebhook}
	slack := &recordingNotifier{channel: ChannelSlack, err: errors.New("rate limited")}
	d := NewFanout(webhook, nil, slack)
	if d.Len() != 2 {
		t.Fatalf("expected 2 channels, got %d", d.Len())
	}

	err := d.Notify(context.Background(), Event{Code: xerrors.CodeAgentLoadFailed})
	if err == nil || !strings.Contains(err.Error(), "slack") {
		t.Fatalf("expected slack failure to surface, got %v", err)
	}
	if len(webhook.events) != 1 || len(slack.events) != 1 {
		t.Fatalf("events not delivered: %d %d", len(webhook.events), len(slack.events))
	}
}

func TestFromErrorCarriesCodeAndMetadata(t *testing.T) {
	err := xerrors.New(xerrors.CodeAgentCompileFailed, "build failed", xerrors.WithMetadata("source", "agent.go"))
	event := FromError("inv-1", "thread_1", err)
	if event.Code != xerrors.CodeAgentCompileFailed || event.Severity != xerrors.SeverityCritical {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Metadata["source"] != "agent.go" || event.InvocationID != "inv-1" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestWebhookAndSlackDelivery(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	event := Event{Code: xerrors.CodeAgentLoadFailed, InvocationID: "inv-1", ThreadID: "thread_1", Message: "no entry"}
	if err := (&WebhookNotifier{URL: srv.URL + "/hook", Client: srv.Client()}).Notify(context.Background(), event); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if err := (&SlackNotifier{WebhookURL: srv.URL + "/slack", Client: srv.Client()}).Notify(context.Background(), event); err != nil {
		t.Fatalf("slack: %v", err)
	}
	if err := (&WebhookNotifier{URL: srv.URL + "/fail", Client: srv.Client()}).Notify(context.Background(), event); err == nil {
		t.Fatal("expected error for 502")
	}
	if err := (&SlackNotifier{WebhookURL: srv.URL + "/fail", Client: srv.Client()}).Notify(context.Background(), event); err == nil {
		t.Fatal("expected slack error for 502")
	}

	if len(bodies) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(bodies))
	}
	if bodies[0]["code"] != string(xerrors.CodeAgentLoadFailed) || bodies[0]["thread_id"] != "thread_1" {
		t.Fatalf("unexpected webhook body %v", bodies[0])
	}
	if text, _ := bodies[1]["text"].(string); !strings.Contains(text, "AGENT_LOAD_FAILED") {
		t.Fatalf("unexpected slack body %v", bodies[1])
	}
	attachments, _ := bodies[1]["attachments"].([]any)
	if len(attachments) != 1 {
		t.Fatalf("expected one slack attachment, got %v", bodies[1])
	}
	fields, _ := attachments[0].(map[string]any)["fields"].([]any)
	if len(fields) != 2 || fields[0].(map[string]any)["value"] != "thread_1" {
		t.Fatalf("thread not reported in slack fields: %v", fields)
	}
}

func TestUnconfiguredNotifiersAreSkipped(t *testing.T) {
	if err := (&WebhookNotifier{}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := (&SlackNotifier{}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	if New(config.AlertingConfig{}) != nil {
		t.Fatal("expected nil dispatcher without channels")
	}
	d, ok := New(config.AlertingConfig{WebhookURL: "http://hooks.local", SlackWebhookURL: "http://slack.local", TimeoutSeconds: 1}).(*FanoutDispatcher)
	if !ok || d.Len() != 2 {
		t.Fatalf("expected fanout with 2 channels, got %#v", d)
	}
}
