package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

var _ database.LogWriter = (*Store)(nil)

const logColumns = "id, empid, entry_time, exit_time"

// OpenEntry inserts an open row for empID. The open row check and the
// insert share a transaction.
func (s *Store) OpenEntry(ctx context.Context, empID identity.Identity, entry time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx,
		s.dialect.rebind("SELECT id FROM logs WHERE empid = ? AND exit_time IS NULL LIMIT 1"),
		string(empID),
	).Scan(&existing)
	switch {
	case err == nil:
		return 0, fmt.Errorf("%s has open row %d: %w", empID, existing, database.ErrOpenRowExists)
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("checking open row for %s: %w", empID, err)
	}

	id, err := s.insertOpen(ctx, tx, empID, entry)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing log row for %s: %w", empID, err)
	}
	return id, nil
}

// ReopenEntry closes the open rows of empID at ts and opens a new one at ts.
// Nothing is written unless both steps succeed.
func (s *Store) ReopenEntry(ctx context.Context, empID identity.Identity, ts time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.dialect.rebind("UPDATE logs SET exit_time = ? WHERE empid = ? AND exit_time IS NULL"),
		database.FormatTime(ts), string(empID),
	); err != nil {
		return 0, fmt.Errorf("closing stale rows of %s: %w", empID, err)
	}

	id, err := s.insertOpen(ctx, tx, empID, ts)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reopened row for %s: %w", empID, err)
	}
	return id, nil
}

func (s *Store) insertOpen(ctx context.Context, tx *sql.Tx, empID identity.Identity, entry time.Time) (int64, error) {
	insert := s.dialect.rebind("INSERT INTO logs (empid, entry_time, exit_time) VALUES (?, ?, NULL)")
	args := []any{string(empID), database.FormatTime(entry)}

	if s.dialect.returning {
		var id int64
		if err := tx.QueryRowContext(ctx, insert+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("inserting log row for %s: %w", empID, err)
		}
		return id, nil
	}

	res, err := tx.ExecContext(ctx, insert, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting log row for %s: %w", empID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}
	return id, nil
}

// CloseEntry sets the exit time on every open row of empID.
func (s *Store) CloseEntry(ctx context.Context, empID identity.Identity, exit time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.dialect.rebind("UPDATE logs SET exit_time = ? WHERE empid = ? AND exit_time IS NULL"),
		database.FormatTime(exit), string(empID),
	)
	if err != nil {
		return fmt.Errorf("closing log row for %s: %w", empID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", empID, database.ErrNoOpenRow)
	}
	return nil
}

// ListLogs returns rows newest first.
func (s *Store) ListLogs(ctx context.Context, filter database.LogFilter) ([]database.LogRow, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmpID != "" {
		where = append(where, "empid = ?")
		args = append(args, string(filter.EmpID))
	}
	if filter.OpenOnly {
		where = append(where, "exit_time IS NULL")
	}

	query := "SELECT " + logColumns + " FROM logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryRows(ctx, s.dialect.rebind(query), args...)
}

// FindOpen returns the oldest open row for empID, or nil.
func (s *Store) FindOpen(ctx context.Context, empID identity.Identity) (*database.LogRow, error) {
	rows, err := s.queryRows(ctx,
		s.dialect.rebind("SELECT "+logColumns+" FROM logs WHERE empid = ? AND exit_time IS NULL ORDER BY id LIMIT 1"),
		string(empID),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// OpenEntries returns every open row ordered by entry time.
func (s *Store) OpenEntries(ctx context.Context) ([]database.LogRow, error) {
	return s.queryRows(ctx, "SELECT "+logColumns+" FROM logs WHERE exit_time IS NULL ORDER BY entry_time, id")
}

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]database.LogRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var out []database.LogRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logs: %w", err)
	}
	return out, nil
}

// scanRow tolerates NULL empid and entry_time in tables created by older
// versions of the schema.
func scanRow(rows *sql.Rows) (database.LogRow, error) {
	var (
		row               database.LogRow
		empID, entry, ext sql.NullString
	)
	if err := rows.Scan(&row.ID, &empID, &entry, &ext); err != nil {
		return row, fmt.Errorf("scanning log row: %w", err)
	}
	row.EmpID = identity.Identity(empID.String)

	if entry.Valid && entry.String != "" {
		ts, err := database.ParseTime(entry.String)
		if err != nil {
			return row, fmt.Errorf("row %d entry_time: %w", row.ID, err)
		}
		row.EntryTime = ts
	}
	if ext.Valid {
		ts, err := database.ParseTime(ext.String)
		if err != nil {
			return row, fmt.Errorf("row %d exit_time: %w", row.ID, err)
		}
		row.ExitTime = &ts
	}
	return row, nil
}
