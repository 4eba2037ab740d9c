package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/jarvis-voice/internal/history"
)

const turnColumns = `id, turn_id, session_id, transcript, response, tool_calls,
	terminate, offline_mode, aborted, started_at, completed_at`

// turnRepository implements history.Repository using SQLite.
type turnRepository struct {
	db *sql.DB
}

func newTurnRepository(db *sql.DB) *turnRepository {
	return &turnRepository{db: db}
}

var _ history.Repository = (*turnRepository)(nil)

func scanTurn(scanner interface{ Scan(...any) error }) (*TurnModel, error) {
	var m TurnModel
	err := scanner.Scan(
		&m.ID, &m.TurnID, &m.SessionID, &m.Transcript, &m.Response, &m.ToolCalls,
		&m.Terminate, &m.OfflineMode, &m.Aborted, &m.StartedAt, &m.CompletedAt,
	)
	return &m, err
}

// Save inserts new records (ID == 0) and sets their ID; existing records are updated.
func (r *turnRepository) Save(ctx context.Context, rec *history.Record) error {
	m, err := toTurnModel(rec)
	if err != nil {
		return fmt.Errorf("failed to encode tool calls: %w", err)
	}

	if rec.ID == 0 {
		result, err := r.db.ExecContext(ctx,
			`INSERT INTO turns (
				turn_id, session_id, transcript, response, tool_calls,
				terminate, offline_mode, aborted, started_at, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.TurnID, m.SessionID, m.Transcript, m.Response, m.ToolCalls,
			m.Terminate, m.OfflineMode, m.Aborted, m.StartedAt, m.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		rec.ID = id
		return nil
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE turns SET
			transcript = ?, response = ?, tool_calls = ?,
			terminate = ?, offline_mode = ?, aborted = ?, completed_at = ?
		WHERE id = ?`,
		m.Transcript, m.Response, m.ToolCalls,
		m.Terminate, m.OfflineMode, m.Aborted, m.CompletedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update turn: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return history.ErrNotFound
	}
	return nil
}

// FindByTurnID returns history.ErrNotFound when no row matches.
func (r *turnRepository) FindByTurnID(ctx context.Context, turnID string) (*history.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+turnColumns+` FROM turns WHERE turn_id = ?`, turnID)
	m, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find turn: %w", err)
	}
	return m.toRecord()
}

// List returns turns newest first.
func (r *turnRepository) List(ctx context.Context, filter history.ListFilter) ([]*history.Record, error) {
	query := `SELECT ` + turnColumns + ` FROM turns`
	var args []any

	if filter.SessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, filter.SessionID)
	}

	query += ` ORDER BY started_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*history.Record
	for rows.Next() {
		m, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		rec, err := m.toRecord()
		if err != nil {
			return nil, fmt.Errorf("failed to decode turn %s: %w", m.TurnID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turn rows: %w", err)
	}
	return records, nil
}

// Prune hard-deletes turns that started before the cutoff.
func (r *turnRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM turns WHERE started_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
