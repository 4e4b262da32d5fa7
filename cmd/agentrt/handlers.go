package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nuyoahch/agent-runtime/internal/alerting"
	"github.com/nuyoahch/agent-runtime/internal/api"
	"github.com/nuyoahch/agent-runtime/internal/bootstrap"
	"github.com/nuyoahch/agent-runtime/internal/config"
	"github.com/nuyoahch/agent-runtime/internal/events"
	"github.com/nuyoahch/agent-runtime/internal/hub"
	"github.com/nuyoahch/agent-runtime/internal/loader"
	"github.com/nuyoahch/agent-runtime/internal/runlog"
	"github.com/nuyoahch/agent-runtime/internal/runtime"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
	"github.com/nuyoahch/agent-runtime/pkg/logger"
	"github.com/nuyoahch/agent-runtime/pkg/poll"
)

const payloadEnv = "AGENTRT_PAYLOAD"

// resolvePayload picks the run payload: --payload, then --payload-file,
// then AGENTRT_PAYLOAD.
func resolvePayload(inline, file string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if file != "" {
		return bootstrap.LoadPayloadFile(file)
	}
	if raw := os.Getenv(payloadEnv); strings.TrimSpace(raw) != "" {
		return raw, nil
	}
	return "", errors.New("no payload: set --payload, --payload-file or " + payloadEnv)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func setup(path string) (*config.Config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func runAgent(ctx context.Context, configPath, payload string) error {
	cfg, err := setup(configPath)
	if err != nil {
		return err
	}
	log := logger.Named("agentrt")

	bus, err := events.Open(cfg.Events)
	if err != nil {
		return err
	}
	defer bus.Close()

	store, err := runlog.Open(ctx, cfg.RunStore)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Metrics.Address != "" {
		go func() {
			if err := api.NewServer(cfg.Metrics.Address, store).Start(ctx); err != nil {
				log.Warn("status server stopped", "error", err)
			}
		}()
	}

	env := runtime.New(runtime.Options{
		Manager: bootstrap.NewManager(bootstrap.HubClientFactory(cfg.Hub, cfg.Policy, nil)),
		Loader: loader.Options{
			Compiler: loader.GoPluginCompiler{
				GoBinary:   cfg.Loader.GoBinary,
				WorkDir:    cfg.Loader.WorkDir,
				BuildFlags: cfg.Loader.BuildFlags,
				Timeout:    cfg.Loader.Timeout(),
			},
			OutputDir: cfg.Loader.OutputDir,
			EntryName: cfg.Loader.EntryName,
		},
		Events: bus,
		Runs:   store,
		Alerts: alerting.New(cfg.Alerting),
	})
	if err := env.Initialize(ctx, payload); err != nil {
		return err
	}
	log.Info("agent started", "invocation_id", env.InvocationID())

	// The agent's own failure is recorded and logged by the runtime; the
	// host still exits cleanly.
	if err := env.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Info("agent finished with error", "invocation_id", env.InvocationID(), "error", err)
	}
	return nil
}

func newHubAdapter(cfg *config.Config, hf hubFlags, threadID string) (*hub.Adapter, error) {
	auth := hf.userAuth
	if auth == "" {
		auth = os.Getenv("AGENTRT_USER_AUTH")
	}
	return hub.New(hub.Config{
		UserAuth:          auth,
		BaseURL:           hf.baseURL,
		ThreadID:          threadID,
		Timeout:           cfg.Hub.Timeout(),
		RequestsPerSecond: cfg.Hub.RequestsPerSecond,
		Burst:             cfg.Hub.Burst,
	})
}

type chatRequest struct {
	threadID    string
	assistantID string
	model       string
	message     string
}

func runChat(ctx context.Context, out io.Writer, configPath string, hf hubFlags, req chatRequest) error {
	cfg, err := setup(configPath)
	if err != nil {
		return err
	}
	adapter, err := newHubAdapter(cfg, hf, req.threadID)
	if err != nil {
		return err
	}
	if req.threadID == "" {
		thread, err := adapter.CreateThread(ctx, nil)
		if err != nil {
			return err
		}
		adapter = adapter.ForThread(thread.ID)
		fmt.Fprintf(out, "thread: %s\n", thread.ID)
	}

	if _, err := adapter.PostUserMessage(ctx, req.message); err != nil {
		return err
	}
	run, err := adapter.CreateRun(ctx, hub.RunRequest{AssistantID: req.assistantID, Model: req.model})
	if err != nil {
		return err
	}
	run, err = adapter.WaitForRun(ctx, run.ID, poll.Options{
		Interval:    cfg.Poll.AttemptDelay(),
		MaxAttempts: cfg.Poll.MaxAttempts,
	})
	if err != nil {
		return err
	}
	if run.Status != hub.RunCompleted {
		return fmt.Errorf("run %s ended with status %s: %s", run.ID, run.Status, run.LastError.String())
	}

	messages, err := adapter.ListMessages(ctx, agentenv.ListOptions{Order: agentenv.OrderDesc, Limit: 20})
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if msg.Role == agentenv.RoleAssistant {
			fmt.Fprintln(out, msg.Text())
			break
		}
	}

	files, err := adapter.LoadThreadFiles(ctx)
	if err != nil {
		return err
	}
	for name, file := range files {
		fmt.Fprintf(out, "file: %s (%s, %d bytes)\n", name, file.ID, file.Bytes)
	}
	return nil
}

func runModels(ctx context.Context, out io.Writer, configPath string, hf hubFlags) error {
	cfg, err := setup(configPath)
	if err != nil {
		return err
	}
	adapter, err := newHubAdapter(cfg, hf, "")
	if err != nil {
		return err
	}
	models, err := adapter.ListModels(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\n", m.ID, m.OwnedBy)
	}
	return tw.Flush()
}

func runEvents(ctx context.Context, out io.Writer, configPath string) error {
	cfg, err := setup(configPath)
	if err != nil {
		return err
	}
	if cfg.Events.Driver == "" || cfg.Events.Driver == "memory" {
		return errors.New("events: the memory driver is process-local; configure redis or rabbitmq")
	}
	bus, err := events.Open(cfg.Events)
	if err != nil {
		return err
	}
	defer bus.Close()

	enc := json.NewEncoder(out)
	err = bus.Consume(ctx, func(_ context.Context, event events.Event) error {
		return enc.Encode(event)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runRuns(ctx context.Context, out io.Writer, configPath, threadID string, limit int) error {
	cfg, err := setup(configPath)
	if err != nil {
		return err
	}
	store, err := runlog.Open(ctx, cfg.RunStore)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListByThread(ctx, threadID, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INVOCATION\tSTATUS\tSTARTED\tDURATION\tERROR")
	for _, rec := range records {
		duration := "-"
		if rec.FinishedAt != nil {
			duration = rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.InvocationID, rec.Status, rec.StartedAt.Format(time.RFC3339), duration, rec.Error)
	}
	return tw.Flush()
}
