// Package runtime is the host entry point: it bootstraps the run once and
// launches the agent in a supervised goroutine.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nuyoahch/agent-runtime/internal/alerting"
	"github.com/nuyoahch/agent-runtime/internal/bootstrap"
	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/internal/events"
	"github.com/nuyoahch/agent-runtime/internal/loader"
	"github.com/nuyoahch/agent-runtime/internal/metrics"
	"github.com/nuyoahch/agent-runtime/internal/runlog"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

// Options wires an Environment. Events, Runs and Alerts are optional.
type Options struct {
	Manager *bootstrap.Manager
	Loader  loader.Options
	Events  events.Publisher
	Runs    runlog.Store
	Alerts  alerting.Dispatcher
	Logger  *slog.Logger
}

// Environment owns one agent invocation.
type Environment struct {
	opts Options
	log  *slog.Logger

	mu           sync.Mutex
	ready        bool
	client       agentenv.SecureClient
	invocationID string
	done         chan struct{}
	runErr       error
}

// New returns an uninitialized environment.
func New(opts Options) *Environment {
	log := opts.Logger
	if log == nil {
		log = logger.Named("runtime")
	}
	return &Environment{opts: opts, log: log}
}

// Initialize bootstraps the run from payload and starts the agent in the
// background. Calls after the first success return nil and do nothing.
// Agent failures never surface here; see Wait.
func (e *Environment) Initialize(ctx context.Context, payload string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	if e.opts.Manager == nil {
		return xerrors.New(xerrors.CodeConfigInvalid, "runtime has no configuration manager")
	}

	if _, err := e.opts.Manager.Initialize(payload); err != nil {
		return err
	}
	client, err := e.opts.Manager.CapabilityClient()
	if err != nil {
		return err
	}
	cfg, err := e.opts.Manager.Config()
	if err != nil {
		return err
	}

	e.client = client
	e.invocationID = uuid.NewString()
	e.done = make(chan struct{})
	e.ready = true

	go e.supervise(ctx, e.invocationID, cfg, agentenv.New(client))
	return nil
}

// CapabilityClient returns the client once Initialize has succeeded.
func (e *Environment) CapabilityClient() (agentenv.SecureClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil, bootstrap.ErrUninitialized
	}
	return e.client, nil
}

// InvocationID identifies the launched run; empty before Initialize.
func (e *Environment) InvocationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invocationID
}

// Wait blocks until the agent finishes or ctx is done and returns the
// agent's error, which the runtime has already logged.
func (e *Environment) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return bootstrap.ErrUninitialized
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.runErr
	}
}

func (e *Environment) supervise(ctx context.Context, invocationID string, cfg bootstrap.RunConfiguration, env *agentenv.Env) {
	log := e.log.With("invocation_id", invocationID, "thread_id", cfg.ThreadID)
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.New(xerrors.CodeAgentRunFailed, fmt.Sprintf("agent supervisor panicked: %v", r))
		}
		e.finish(ctx, log, invocationID, cfg.ThreadID, err)
	}()

	e.record(ctx, log, runlog.Record{
		InvocationID: invocationID,
		ThreadID:     cfg.ThreadID,
		EntryFiles:   cfg.EntryFiles,
		Status:       runlog.StatusRunning,
		StartedAt:    time.Now().UTC(),
	})
	e.publish(ctx, log, events.New(invocationID, cfg.ThreadID, events.AgentStarted))
	logger.Audit().Info("agent invocation started", "invocation_id", invocationID, "thread_id", cfg.ThreadID, "files", len(cfg.EntryFiles))

	opts := e.opts.Loader
	onCompiled := opts.OnCompiled
	opts.OnCompiled = func(artifacts []string) {
		e.publish(ctx, log, events.New(invocationID, cfg.ThreadID, events.AgentCompiled))
		if onCompiled != nil {
			onCompiled(artifacts)
		}
	}
	err = loader.New(opts).RunAgent(ctx, cfg.EntryFiles, env)
}

func (e *Environment) finish(ctx context.Context, log *slog.Logger, invocationID, threadID string, runErr error) {
	status := runlog.StatusSucceeded
	event := events.New(invocationID, threadID, events.AgentSucceeded)
	errMsg := ""
	if runErr != nil {
		status = runlog.StatusFailed
		event = event.WithError(runErr)
		event.Type = events.AgentFailed
		errMsg = runErr.Error()
		log.Error("agent run failed", "code", xerrors.CodeOf(runErr), "error", runErr)
	} else {
		log.Info("agent run finished")
	}

	// Finish bookkeeping even when ctx is cancelled.
	bg := context.WithoutCancel(ctx)
	if e.opts.Runs != nil {
		if err := e.opts.Runs.Finish(bg, invocationID, status, errMsg, time.Now().UTC()); err != nil {
			log.Warn("record invocation result failed", "error", err)
		}
	}
	e.publish(bg, log, event)
	if runErr != nil && e.opts.Alerts != nil && xerrors.ShouldAlert(runErr) {
		if err := e.opts.Alerts.Notify(bg, alerting.FromError(invocationID, threadID, runErr)); err != nil {
			log.Warn("send alert failed", "error", err)
		}
	}
	metrics.RecordAgentRun(string(status))
	logger.Audit().Info("agent invocation finished", "invocation_id", invocationID, "thread_id", threadID, "status", status)

	e.mu.Lock()
	e.runErr = runErr
	close(e.done)
	e.mu.Unlock()
}

func (e *Environment) record(ctx context.Context, log *slog.Logger, rec runlog.Record) {
	if e.opts.Runs == nil {
		return
	}
	if err := e.opts.Runs.Create(ctx, rec); err != nil {
		log.Warn("record invocation failed", "error", err)
	}
}

func (e *Environment) publish(ctx context.Context, log *slog.Logger, event events.Event) {
	if e.opts.Events == nil {
		return
	}
	if err := e.opts.Events.Publish(ctx, event); err != nil {
		log.Warn("publish lifecycle event failed", "type", event.Type, "error", err)
	}
}
