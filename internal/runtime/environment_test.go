package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nuyoahch/agent-runtime/internal/alerting"
	"github.com/nuyoahch/agent-runtime/internal/bootstrap"
	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/internal/events"
	"github.com/nuyoahch/agent-runtime/internal/hub"
	"github.com/nuyoahch/agent-runtime/internal/loader"
	"github.com/nuyoahch/agent-runtime/internal/runlog"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
)

type copyCompiler struct{}

func (copyCompiler) Compile(_ context.Context, src loader.Source, artifact string) error {
	return os.WriteFile(artifact, src.Text, 0o644)
}

type moduleFunc func(symbol string) (any, error)

func (f moduleFunc) Lookup(symbol string) (any, error) { return f(symbol) }

type staticOpener struct {
	run func(context.Context, *agentenv.Env) error
}

func (o staticOpener) Open(string) (loader.Module, error) {
	return moduleFunc(func(string) (any, error) { return o.run, nil }), nil
}

func hubFactory(cfg bootstrap.RunConfiguration) (agentenv.SecureClient, error) {
	return hub.New(hub.Config{UserAuth: cfg.UserAuth, BaseURL: cfg.BaseURL, ThreadID: cfg.ThreadID, EnvVars: cfg.EnvVars})
}

type alertRecorder struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (a *alertRecorder) Notify(_ context.Context, event alerting.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

type fixture struct {
	env    *Environment
	bus    *events.MemoryBus
	runs   *runlog.MemoryStore
	alerts *alertRecorder
}

func newFixture(t *testing.T, run func(context.Context, *agentenv.Env) error) (*fixture, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "agent.go")
	if err := os.WriteFile(src, []byte("package main"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	f := &fixture{bus: events.NewMemoryBus(16), runs: runlog.NewMemoryStore(), alerts: &alertRecorder{}}
	f.env = New(Options{
		Manager: bootstrap.NewManager(hubFactory),
		Loader: loader.Options{
			Compiler:  copyCompiler{},
			Opener:    staticOpener{run: run},
			OutputDir: filepath.Join(dir, "out"),
		},
		Events: f.bus,
		Runs:   f.runs,
		Alerts: f.alerts,
	})
	payload := `{"user_auth": "secret", "thread_id": "thread_1", "base_url": "https://hub.example.com", "agent_ts_files_to_transpile": ["` + filepath.ToSlash(src) + `"], "env_vars": {"K": "V"}}`
	return f, payload
}

func (f *fixture) drainEvents(t *testing.T) []events.Type {
	t.Helper()
	_ = f.bus.Close()
	var types []events.Type
	_ = f.bus.Consume(context.Background(), func(_ context.Context, e events.Event) error {
		types = append(types, e.Type)
		return nil
	})
	return types
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestInitializeLaunchesAgentOnce(t *testing.T) {
	var calls atomic.Int32
	f, payload := newFixture(t, func(ctx context.Context, env *agentenv.Env) error {
		calls.Add(1)
		if v, _ := env.EnvVar("K"); v != "V" {
			t.Errorf("env var not visible to agent: %q", v)
		}
		return nil
	})

	if err := f.env.Initialize(context.Background(), payload); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	first := f.env.InvocationID()
	if err := f.env.Initialize(context.Background(), payload); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if err := f.env.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("agent ran %d times", calls.Load())
	}
	if f.env.InvocationID() != first {
		t.Fatal("second Initialize must not start a new invocation")
	}

	rec, err := f.runs.Get(context.Background(), first)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != runlog.StatusSucceeded || rec.ThreadID != "thread_1" || rec.FinishedAt == nil {
		t.Fatalf("unexpected ledger record %+v", rec)
	}
	got := f.drainEvents(t)
	want := []events.Type{events.AgentStarted, events.AgentCompiled, events.AgentSucceeded}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestAgentFailureIsContained(t *testing.T) {
	f, payload := newFixture(t, func(context.Context, *agentenv.Env) error {
		return errors.New("agent exploded")
	})

	if err := f.env.Initialize(context.Background(), payload); err != nil {
		t.Fatalf("Initialize must not report agent failures: %v", err)
	}
	err := f.env.Wait(waitCtx(t))
	if !xerrors.HasCode(err, xerrors.CodeAgentRunFailed) {
		t.Fatalf("expected AGENT_RUN_FAILED from Wait, got %v", err)
	}
	rec, _ := f.runs.Get(context.Background(), f.env.InvocationID())
	if rec.Status != runlog.StatusFailed || rec.Error == "" {
		t.Fatalf("failure not recorded: %+v", rec)
	}
	got := f.drainEvents(t)
	if got[len(got)-1] != events.AgentFailed {
		t.Fatalf("expected final agent.failed event, got %v", got)
	}
	if f.alerts.count() != 0 {
		t.Fatal("agent errors must not page operators")
	}
}

type failingOpener struct{}

func (failingOpener) Open(string) (loader.Module, error) {
	return nil, errors.New("plugin was built with a different version of package")
}

func TestLoadFailureRaisesAlert(t *testing.T) {
	f, payload := newFixture(t, func(context.Context, *agentenv.Env) error { return nil })
	f.env.opts.Loader.Opener = failingOpener{}

	if err := f.env.Initialize(context.Background(), payload); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := f.env.Wait(waitCtx(t)); !xerrors.HasCode(err, xerrors.CodeAgentLoadFailed) {
		t.Fatalf("expected AGENT_LOAD_FAILED, got %v", err)
	}
	if f.alerts.count() != 1 {
		t.Fatalf("expected one alert, got %d", f.alerts.count())
	}
	if ev := f.alerts.events[0]; ev.Code != xerrors.CodeAgentLoadFailed || ev.ThreadID != "thread_1" {
		t.Fatalf("unexpected alert %+v", ev)
	}
}

func TestAgentPanicIsContained(t *testing.T) {
	f, payload := newFixture(t, func(context.Context, *agentenv.Env) error {
		panic("kaboom")
	})
	if err := f.env.Initialize(context.Background(), payload); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := f.env.Wait(waitCtx(t)); !xerrors.HasCode(err, xerrors.CodeAgentRunFailed) {
		t.Fatalf("expected AGENT_RUN_FAILED, got %v", err)
	}
}

func TestCapabilityClientRequiresInitialize(t *testing.T) {
	f, payload := newFixture(t, func(context.Context, *agentenv.Env) error { return nil })

	if _, err := f.env.CapabilityClient(); !xerrors.HasCode(err, xerrors.CodeUninitialized) {
		t.Fatalf("expected UNINITIALIZED, got %v", err)
	}
	if err := f.env.Wait(context.Background()); !xerrors.HasCode(err, xerrors.CodeUninitialized) {
		t.Fatalf("Wait before Initialize should fail, got %v", err)
	}
	if err := f.env.Initialize(context.Background(), "  "); !xerrors.HasCode(err, xerrors.CodeUninitialized) {
		t.Fatalf("blank payload should leave the runtime uninitialized, got %v", err)
	}
	if err := f.env.Initialize(context.Background(), payload); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	client, err := f.env.CapabilityClient()
	if err != nil || client.ThreadID() != "thread_1" {
		t.Fatalf("CapabilityClient = %v, %v", client, err)
	}
	_ = f.env.Wait(waitCtx(t))
}

func TestInvalidPayloadIsReported(t *testing.T) {
	f, _ := newFixture(t, func(context.Context, *agentenv.Env) error { return nil })
	if err := f.env.Initialize(context.Background(), `{"thread_id": "x"}`); !xerrors.HasCode(err, xerrors.CodeConfigInvalid) {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
}
