package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditWriterDefaults(t *testing.T) {
	if _, err := newAuditWriter(AuditConfig{Enabled: true}); err == nil {
		t.Fatal("expected error for empty path")
	}

	w, err := newAuditWriter(AuditConfig{Path: "audit.log", MaxBackups: 3})
	if err != nil {
		t.Fatalf("newAuditWriter: %v", err)
	}
	if w.MaxSize != 100 || w.MaxBackups != 3 || w.MaxAge != 30 {
		t.Fatalf("unexpected limits: size=%d backups=%d age=%d", w.MaxSize, w.MaxBackups, w.MaxAge)
	}
}

func TestAuditLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "invocations.log")
	log, err := buildAuditLogger(AuditConfig{Enabled: true, Path: path})
	if err != nil {
		t.Fatalf("buildAuditLogger: %v", err)
	}
	log.Info("agent invocation started", "invocation_id", "inv-1")
	t.Cleanup(func() { _ = Sync() })

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(data), `"invocation_id":"inv-1"`) {
		t.Fatalf("unexpected audit line %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING").String() != "WARN" {
		t.Fatalf("warning should map to WARN")
	}
	if parseLevel("").String() != "INFO" {
		t.Fatalf("default level should be INFO")
	}
}
