package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nuyoahch/agent-runtime/internal/capability"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentrt.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "loader:\n  output_dir: build\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Loader.OutputDir != filepath.Join(filepath.Dir(path), "build") {
		t.Fatalf("relative output dir not resolved: %s", cfg.Loader.OutputDir)
	}
	if cfg.Loader.EntryName != "agent" || cfg.Loader.GoBinary != "go" {
		t.Fatalf("loader defaults missing: %+v", cfg.Loader)
	}
	if cfg.Events.Driver != "memory" || cfg.RunStore.Driver != "memory" {
		t.Fatalf("driver defaults missing: %+v %+v", cfg.Events, cfg.RunStore)
	}
	if cfg.Poll.MaxAttempts != 30 || cfg.Poll.AttemptDelay().Seconds() != 1 {
		t.Fatalf("poll defaults missing: %+v", cfg.Poll)
	}
	if cfg.Alerting.Timeout().Seconds() != 10 || cfg.Alerting.WebhookURL != "" {
		t.Fatalf("alerting defaults missing: %+v", cfg.Alerting)
	}
}

func TestLoadReadsJSON(t *testing.T) {
	path := writeConfig(t, `{"policy": {"denied": ["files.write"]}, "hub": {"requests_per_second": 2.5}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hub.RequestsPerSecond != 2.5 {
		t.Fatalf("unexpected hub config %+v", cfg.Hub)
	}
	if cfg.Policy.Permits(capability.FilesWrite) {
		t.Fatal("files.write should be denied")
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"events driver": "events:\n  driver: kafka\n",
		"mysql dsn":     "run_store:\n  driver: mysql\n",
		"capability":    "policy:\n  allowed: [shell]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
