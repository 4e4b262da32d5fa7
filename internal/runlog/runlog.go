// Package runlog records every agent invocation: which files ran for which
// thread and how it ended.
package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/nuyoahch/agent-runtime/internal/config"
)

// Status 表示一次调用的状态。
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record 表示一次智能体调用的落库结构。
type Record struct {
	InvocationID string     `json:"invocation_id"`
	ThreadID     string     `json:"thread_id"`
	EntryFiles   []string   `json:"entry_files"`
	Status       Status     `json:"status"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Store persists invocation records.
type Store interface {
	Create(ctx context.Context, record Record) error
	Finish(ctx context.Context, invocationID string, status Status, errMsg string, finishedAt time.Time) error
	Get(ctx context.Context, invocationID string) (*Record, error)
	// ListByThread returns newest first; limit <= 0 means no limit.
	ListByThread(ctx context.Context, threadID string, limit int) ([]Record, error)
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.RunStoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "mysql":
		return NewSQLStore(ctx, SQLConfig{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			AutoMigrate:     cfg.AutoMigrate,
		})
	default:
		return nil, fmt.Errorf("unsupported run_store driver %q", cfg.Driver)
	}
}
