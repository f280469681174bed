// Package journal records every command sent to the remote engine in SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/drivelink/internal/message"
)

const (
	// maxErrorBytes caps the error text stored per command.
	maxErrorBytes = 16 * 1024

	// timeFormat has fixed-width fractions so stored times sort as text.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Digest returns the BLAKE3 digest of msg's ordered JSON form. Identical
// dispatches share a digest.
func Digest(msg *message.Message) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode dispatch: %w", err)
	}
	return digestOf(data), nil
}

func digestOf(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Begin records a command as running and returns its id.
func (j *Journal) Begin(ctx context.Context, req BeginRequest) (string, error) {
	if req.Kind == "" {
		return "", fmt.Errorf("kind is empty")
	}
	if req.Command == "" {
		return "", fmt.Errorf("command is empty")
	}

	var dispatch, digest, target any
	if req.Dispatch != nil {
		data, err := json.Marshal(req.Dispatch)
		if err != nil {
			return "", fmt.Errorf("encode dispatch: %w", err)
		}
		dispatch = string(data)
		digest = digestOf(data)
		if t := req.Dispatch.Target(); t != "" {
			target = t
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(timeFormat)

	_, err := j.db.ExecContext(ctx, `
INSERT INTO command_log(id, kind, command, target, dispatch, dispatch_digest, status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, id, req.Kind, req.Command, target, dispatch, digest, StatusRunning, now)
	if err != nil {
		return "", fmt.Errorf("insert command: %w", err)
	}
	return id, nil
}

// Complete records the outcome of a running command.
func (j *Journal) Complete(ctx context.Context, id string, req CompleteRequest) error {
	if id == "" {
		return fmt.Errorf("id is empty")
	}
	if !req.Status.Terminal() {
		return fmt.Errorf("invalid terminal status: %q", req.Status)
	}

	var result, code, lastError any
	if req.Result != nil {
		data, err := json.Marshal(req.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = string(data)
		if n, err := req.Result.Int(message.KeyResultCode); err == nil {
			code = n
		}
	}
	if req.Err != nil {
		s := req.Err.Error()
		if len(s) > maxErrorBytes {
			s = s[:maxErrorBytes]
		}
		lastError = s
	}

	res, err := j.db.ExecContext(ctx, `
UPDATE command_log
SET status = ?, result = ?, result_code = ?, last_error = ?, completed_at = ?
WHERE id = ? AND status = ?;
`, req.Status, result, code, lastError, time.Now().UTC().Format(timeFormat), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("update command completion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := j.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("command %s already completed", id)
	}
	return nil
}

const selectEntry = `
SELECT id, kind, command, target, dispatch, dispatch_digest, status, result, result_code, last_error, created_at, completed_at
FROM command_log`

// Get returns one command by id.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?;`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get command: %w", err)
	}
	return e, nil
}

// Recent returns the newest commands first. limit <= 0 means 50.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, selectEntry+` ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkAbandoned fails every command still marked running. It is used at
// startup: nothing can still be waiting for those results.
func (j *Journal) MarkAbandoned(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
UPDATE command_log
SET status = ?, last_error = ?, completed_at = ?
WHERE status = ?;
`, StatusFailed, "abandoned: controller restarted", time.Now().UTC().Format(timeFormat), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned commands: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes completed commands older than retention.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention).Format(timeFormat)
	res, err := j.db.ExecContext(ctx, `
DELETE FROM command_log
WHERE status != ? AND created_at < ?;
`, StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune commands: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e            Entry
		kindS        string
		statusS      string
		target       sql.NullString
		dispatch     sql.NullString
		digest       sql.NullString
		result       sql.NullString
		code         sql.NullInt64
		lastError    sql.NullString
		createdAtS   string
		completedAtS sql.NullString
	)
	if err := s.Scan(&e.ID, &kindS, &e.Command, &target, &dispatch, &digest, &statusS,
		&result, &code, &lastError, &createdAtS, &completedAtS); err != nil {
		return nil, err
	}

	e.Kind = Kind(kindS)
	e.Status = Status(statusS)
	e.Target = target.String
	e.DispatchDigest = digest.String
	if dispatch.Valid {
		m := message.New()
		if err := json.Unmarshal([]byte(dispatch.String), m); err == nil {
			e.Dispatch = m
		}
	}
	if result.Valid {
		m := message.New()
		if err := json.Unmarshal([]byte(result.String), m); err == nil {
			e.Result = m
		}
	}
	if code.Valid {
		n := int(code.Int64)
		e.ResultCode = &n
	}
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		e.CreatedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			e.CompletedAt = &t
		}
	}
	return &e, nil
}
