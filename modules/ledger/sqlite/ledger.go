package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/llmrelay/internal/usage"
)

// timeFormat is fixed-width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Ledger is a usage.Ledger backed by SQLite.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time interface check.
var _ usage.Ledger = (*Ledger)(nil)

func (l *Ledger) timestamp() time.Time {
	if l.now != nil {
		return l.now().UTC()
	}
	return time.Now().UTC()
}

// Record implements usage.Recorder.
func (l *Ledger) Record(ctx context.Context, taskID, backend string, r usage.Record) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO usage_entries
			(id, task_id, backend, model, input_tokens, output_tokens,
			 cache_write_tokens, cache_read_tokens, total_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), taskID, backend, r.Model,
		r.Input, r.Output, r.CacheWrite, r.CacheRead, r.TotalCost,
		l.timestamp().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record usage: %w", err)
	}
	return nil
}

// TaskTotals implements usage.Ledger.
func (l *Ledger) TaskTotals(ctx context.Context, taskID string) (usage.Totals, error) {
	t := usage.Totals{TaskID: taskID}

	var first, last, model sql.NullString
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cache_write_tokens), 0),
		       COALESCE(SUM(cache_read_tokens), 0),
		       COALESCE(SUM(total_cost), 0),
		       MIN(created_at),
		       MAX(created_at),
		       (SELECT model FROM usage_entries WHERE task_id = ?1 ORDER BY created_at LIMIT 1)
		FROM usage_entries
		WHERE task_id = ?1`,
		taskID,
	).Scan(&t.Calls, &t.Input, &t.Output, &t.CacheWrite, &t.CacheRead, &t.TotalCost, &first, &last, &model)
	if err != nil {
		return usage.Totals{}, fmt.Errorf("sqlite: task totals: %w", err)
	}

	t.Model = model.String
	if t.First, err = parseTime(first); err != nil {
		return usage.Totals{}, err
	}
	if t.Last, err = parseTime(last); err != nil {
		return usage.Totals{}, err
	}
	return t, nil
}

// Entries implements usage.Ledger.
func (l *Ledger) Entries(ctx context.Context, taskID string, limit int) ([]usage.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, task_id, backend, model, input_tokens, output_tokens,
		       cache_write_tokens, cache_read_tokens, total_cost, created_at
		FROM usage_entries
		WHERE task_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		taskID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []usage.Entry
	for rows.Next() {
		var e usage.Entry
		var created sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Backend, &e.Model,
			&e.Input, &e.Output, &e.CacheWrite, &e.CacheRead, &e.TotalCost, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan entry: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate entries: %w", err)
	}
	return out, nil
}

// Prune implements usage.Ledger.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		"DELETE FROM usage_entries WHERE created_at < ?",
		cutoff.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s.String, err)
	}
	return t, nil
}
