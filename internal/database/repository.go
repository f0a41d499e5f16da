package database

import (
	"context"
	"time"

	"github.com/kozaktomas/face-attendance/internal/identity"
)

// LogReader provides read-only access to attendance rows
type LogReader interface {
	// ListLogs returns rows newest first
	ListLogs(ctx context.Context, filter LogFilter) ([]LogRow, error)
	// FindOpen returns the open row for an identity, or nil if there is none
	FindOpen(ctx context.Context, empID identity.Identity) (*LogRow, error)
	// OpenEntries returns every open row ordered by entry time
	OpenEntries(ctx context.Context) ([]LogRow, error)
}

// LogWriter provides write access to attendance rows
type LogWriter interface {
	LogReader

	// OpenEntry inserts an open row. Returns ErrOpenRowExists if the identity
	// already has one.
	OpenEntry(ctx context.Context, empID identity.Identity, entry time.Time) (int64, error)

	// CloseEntry sets the exit time on the identity's open row. Returns
	// ErrNoOpenRow if there is none.
	CloseEntry(ctx context.Context, empID identity.Identity, exit time.Time) error

	// ReopenEntry closes every open row of the identity at ts and inserts a
	// new open row at ts, in one transaction.
	ReopenEntry(ctx context.Context, empID identity.Identity, ts time.Time) (int64, error)
}
