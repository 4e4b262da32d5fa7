package runlog

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
)

// MemoryStore 在进程生命周期内保存调用记录，适用于本地调试。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Create(_ context.Context, record Record) error {
	if record.InvocationID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "invocation id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.InvocationID]; ok {
		return xerrors.New(xerrors.CodeInvalidArgument, "invocation "+record.InvocationID+" already recorded")
	}
	record.EntryFiles = slices.Clone(record.EntryFiles)
	m.records[record.InvocationID] = record
	return nil
}

func (m *MemoryStore) Finish(_ context.Context, invocationID string, status Status, errMsg string, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[invocationID]
	if !ok {
		return xerrors.New(xerrors.CodeNotFound, "invocation "+invocationID+" not found")
	}
	record.Status = status
	record.Error = errMsg
	record.FinishedAt = &finishedAt
	m.records[invocationID] = record
	return nil
}

func (m *MemoryStore) Get(_ context.Context, invocationID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[invocationID]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "invocation "+invocationID+" not found")
	}
	return &record, nil
}

func (m *MemoryStore) ListByThread(_ context.Context, threadID string, limit int) ([]Record, error) {
	m.mu.RLock()
	var out []Record
	for _, record := range m.records {
		if record.ThreadID == threadID {
			out = append(out, record)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
