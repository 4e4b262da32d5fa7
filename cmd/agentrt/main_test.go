package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestRootCommandTree(t *testing.T) {
	root := buildRootCmd()
	want := map[string]bool{"run": false, "chat": false, "models": false, "events": false, "runs": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	root := buildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "agentrt dev") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestResolvePayloadPrecedence(t *testing.T) {
	t.Setenv(payloadEnv, `{"from":"env"}`)

	got, err := resolvePayload(`{"from":"flag"}`, "")
	if err != nil || got != `{"from":"flag"}` {
		t.Fatalf("inline payload: %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "payload.json")
	if err := os.WriteFile(path, []byte(`{"thread_id":"t1"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = resolvePayload("", path)
	if err != nil || !strings.Contains(got, `"thread_id":"t1"`) {
		t.Fatalf("file payload: %q, %v", got, err)
	}

	got, err = resolvePayload("  ", "")
	if err != nil || got != `{"from":"env"}` {
		t.Fatalf("env payload: %q, %v", got, err)
	}

	t.Setenv(payloadEnv, "")
	if _, err := resolvePayload("", ""); err == nil {
		t.Fatal("expected error without any payload source")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestChatPostsMessageAndPrintsReply(t *testing.T) {
	var polls atomic.Int32
	var posted string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "t9"})
	})
	mux.HandleFunc("POST /threads/t9/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		posted, _ = body["content"].(string)
		writeJSON(w, map[string]any{"id": "m1", "role": "user"})
	})
	mux.HandleFunc("POST /threads/t9/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "r1", "status": "queued"})
	})
	mux.HandleFunc("GET /threads/t9/runs/r1", func(w http.ResponseWriter, r *http.Request) {
		status := "in_progress"
		if polls.Add(1) >= 2 {
			status = "completed"
		}
		writeJSON(w, map[string]any{"id": "r1", "status": status})
	})
	mux.HandleFunc("GET /threads/t9/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]any{
				{"id": "m2", "role": "assistant", "content": []map[string]any{
					{"type": "text", "text": map[string]any{"value": "hello back", "annotations": []any{}}},
				}},
				{"id": "m1", "role": "user", "content": []map[string]any{
					{"type": "text", "text": map[string]any{"value": "hello", "annotations": []any{}}},
				}},
			},
			"has_more": false,
		})
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "missing credential", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	defer srv.Close()

	configPath := filepath.Join(t.TempDir(), "agentrt.yaml")
	if err := os.WriteFile(configPath, []byte("poll:\n  max_attempts: 5\n  attempt_delay_ms: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := runChat(context.Background(), &out, configPath,
		hubFlags{baseURL: srv.URL, userAuth: "secret"},
		chatRequest{assistantID: "a1", message: "hello"})
	if err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if posted != "hello" {
		t.Fatalf("posted %q", posted)
	}
	if polls.Load() != 2 {
		t.Fatalf("expected 2 polls, got %d", polls.Load())
	}
	if !strings.Contains(out.String(), "thread: t9") || !strings.Contains(out.String(), "hello back") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestModelsListsCatalogue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "llama-3", "object": "model", "owned_by": "hub"}},
		})
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := runModels(context.Background(), &out, "", hubFlags{baseURL: srv.URL, userAuth: "secret"}); err != nil {
		t.Fatalf("runModels: %v", err)
	}
	if !strings.Contains(out.String(), "llama-3") || !strings.Contains(out.String(), "hub") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestEventsRejectsMemoryDriver(t *testing.T) {
	if err := runEvents(context.Background(), &bytes.Buffer{}, ""); err == nil {
		t.Fatal("expected error for process-local bus")
	}
}
