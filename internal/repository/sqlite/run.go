package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/codeexec/internal/apperror"
	"github.com/sakif/codeexec/internal/model"
	"github.com/sakif/codeexec/internal/repository"
)

var _ repository.RunRepository = (*DB)(nil)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

const runColumns = `id, executor, invocation_id, caller, code, stdout, stderr,
	exit_code, timed_out, duration_ms, created_at`

// Create inserts run, assigning its ID and CreatedAt.
func (db *DB) Create(ctx context.Context, run *model.Run) error {
	run.ID = xid.New().String()
	run.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Executor,
		run.InvocationID,
		run.Caller,
		run.Code,
		run.Stdout,
		run.Stderr,
		run.ExitCode,
		run.TimedOut,
		run.DurationMS,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating run: %w", err)
	}
	return nil
}

// GetByID returns the run with the given id or an apperror.ErrNotFound error.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Run, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`,
		id,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("run", id)
		}
		return nil, fmt.Errorf("sqlite: getting run %s: %w", id, err)
	}
	return run, nil
}

// List returns runs newest first. Limit defaults to 20 and is capped at 100.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := max(opts.Offset, 0)

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + runColumns + ` FROM runs`)
	if opts.Executor != "" {
		query.WriteString(` WHERE executor = ?`)
		args = append(args, opts.Executor)
	}
	// xids sort by creation time, which breaks ties within one timestamp.
	query.WriteString(` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*model.Run, error) {
	var r model.Run
	if err := s.Scan(
		&r.ID, &r.Executor, &r.InvocationID, &r.Caller, &r.Code,
		&r.Stdout, &r.Stderr, &r.ExitCode, &r.TimedOut, &r.DurationMS,
		&r.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}
