package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
)

// SQLConfig 保存 MySQL 连接配置。
type SQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// SQLStore keeps records in the agent_invocations table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore 连接 MySQL，并在需要时执行尚未应用的迁移。
func NewSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := &SQLStore{db: db}
	if cfg.AutoMigrate {
		if err := runMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return store, nil
}

func openDatabase(ctx context.Context, cfg SQLConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("mysql dsn is required")
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func storageError(err error, op string) error {
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, op)
}

func (s *SQLStore) Create(ctx context.Context, record Record) error {
	if record.InvocationID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "invocation id is required")
	}
	files, err := json.Marshal(record.EntryFiles)
	if err != nil {
		return fmt.Errorf("encode entry files: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO agent_invocations
        (invocation_id, thread_id, entry_files, status, error_message, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.InvocationID,
		record.ThreadID,
		string(files),
		string(record.Status),
		nullString(record.Error),
		record.StartedAt.UnixMilli(),
		nullMillis(record.FinishedAt),
	)
	if err != nil {
		return storageError(err, "insert invocation")
	}
	return nil
}

func (s *SQLStore) Finish(ctx context.Context, invocationID string, status Status, errMsg string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agent_invocations
        SET status = ?, error_message = ?, finished_at = ?
        WHERE invocation_id = ?`,
		string(status), nullString(errMsg), finishedAt.UnixMilli(), invocationID)
	if err != nil {
		return storageError(err, "finish invocation")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageError(err, "finish invocation")
	}
	if affected == 0 {
		return xerrors.New(xerrors.CodeNotFound, "invocation "+invocationID+" not found")
	}
	return nil
}

const selectColumns = `SELECT invocation_id, thread_id, entry_files, status, error_message, started_at, finished_at
        FROM agent_invocations`

func (s *SQLStore) Get(ctx context.Context, invocationID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE invocation_id = ?`, invocationID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.New(xerrors.CodeNotFound, "invocation "+invocationID+" not found")
	}
	if err != nil {
		return nil, storageError(err, "get invocation")
	}
	return record, nil
}

func (s *SQLStore) ListByThread(ctx context.Context, threadID string, limit int) ([]Record, error) {
	query := selectColumns + ` WHERE thread_id = ? ORDER BY started_at DESC`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "list invocations")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, storageError(err, "scan invocation")
		}
		out = append(out, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "list invocations")
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		record     Record
		files      string
		status     string
		errMsg     sql.NullString
		startedAt  int64
		finishedAt sql.NullInt64
	)
	if err := row.Scan(&record.InvocationID, &record.ThreadID, &files, &status, &errMsg, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	if files != "" {
		if err := json.Unmarshal([]byte(files), &record.EntryFiles); err != nil {
			return nil, fmt.Errorf("decode entry files: %w", err)
		}
	}
	record.Status = Status(status)
	record.Error = errMsg.String
	record.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		record.FinishedAt = &t
	}
	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
