// Package attendance applies presence transitions to the log store.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// ErrInconsistent marks a log inconsistency: an arrival while an open row
// exists, or a departure without one. Inconsistencies are reported, never
// returned.
var ErrInconsistent = errors.New("log inconsistency")

// Policy decides what happens when an identity arrives while its previous
// row is still open.
type Policy string

const (
	// PolicyKeep ignores the arrival and keeps the existing open row.
	PolicyKeep Policy = config.DoubleArrivalKeep
	// PolicyCloseStale closes the stale row at the arrival time and opens a new one.
	PolicyCloseStale Policy = config.DoubleArrivalCloseStale
)

// ParsePolicy validates a policy name. Empty means PolicyKeep.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyKeep:
		return PolicyKeep, nil
	case PolicyCloseStale:
		return PolicyCloseStale, nil
	}
	return "", fmt.Errorf("unknown double arrival policy %q", s)
}

// Stats counts what the log has done since it was created.
type Stats struct {
	Arrivals        int `json:"arrivals"`
	Departures      int `json:"departures"`
	Inconsistencies int `json:"inconsistencies"`
}

// Options configures a Log.
type Options struct {
	Policy Policy
	Logger *log.Logger
	// Report receives every inconsistency. Defaults to logging it.
	Report func(err error)
}

// Log records arrivals and departures in a store.
type Log struct {
	store  database.LogWriter
	policy Policy
	logger *log.Logger
	report func(error)

	mu    sync.Mutex
	stats Stats
}

// New creates an attendance log on top of store.
func New(store database.LogWriter, opts Options) *Log {
	if opts.Policy == "" {
		opts.Policy = PolicyKeep
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	l := &Log{store: store, policy: opts.Policy, logger: opts.Logger, report: opts.Report}
	if l.report == nil {
		l.report = func(err error) { l.logger.Printf("Warning: %v", err) }
	}
	return l
}

// RecordArrival opens a row for id at ts. An existing open row is handled
// according to the policy and reported.
func (l *Log) RecordArrival(ctx context.Context, id identity.Identity, ts time.Time) error {
	_, err := l.store.OpenEntry(ctx, id, ts)
	if err == nil {
		l.logger.Printf("entry %s at %s", id, database.FormatTime(ts))
		l.count(func(s *Stats) { s.Arrivals++ })
		return nil
	}
	if !errors.Is(err, database.ErrOpenRowExists) {
		return fmt.Errorf("recording arrival of %s: %w", id, err)
	}

	stale := l.describeOpen(ctx, id)
	switch l.policy {
	case PolicyCloseStale:
		l.inconsistent(fmt.Errorf("%w: %s arrived at %s with %s, closing it", ErrInconsistent, id, database.FormatTime(ts), stale))
		if _, err := l.store.ReopenEntry(ctx, id, ts); err != nil {
			return fmt.Errorf("replacing stale row of %s: %w", id, err)
		}
		l.logger.Printf("entry %s at %s", id, database.FormatTime(ts))
		l.count(func(s *Stats) { s.Arrivals++ })
	default:
		l.inconsistent(fmt.Errorf("%w: %s arrived at %s with %s, keeping it", ErrInconsistent, id, database.FormatTime(ts), stale))
	}
	return nil
}

// describeOpen names the open row of id for a report.
func (l *Log) describeOpen(ctx context.Context, id identity.Identity) string {
	row, err := l.store.FindOpen(ctx, id)
	if err != nil || row == nil {
		return "an open row"
	}
	return fmt.Sprintf("open row %d from %s", row.ID, database.FormatTime(row.EntryTime))
}

// RecordDeparture closes the open row of id at ts. A departure without an
// open row leaves the store unchanged and is reported.
func (l *Log) RecordDeparture(ctx context.Context, id identity.Identity, ts time.Time) error {
	err := l.store.CloseEntry(ctx, id, ts)
	switch {
	case err == nil:
		l.logger.Printf("exit %s at %s", id, database.FormatTime(ts))
		l.count(func(s *Stats) { s.Departures++ })
		return nil
	case errors.Is(err, database.ErrNoOpenRow):
		l.inconsistent(fmt.Errorf("%w: %s departed at %s without an open row", ErrInconsistent, id, database.FormatTime(ts)))
		return nil
	default:
		return fmt.Errorf("recording departure of %s: %w", id, err)
	}
}

// CloseAll records a departure at ts for every identity in ids.
func (l *Log) CloseAll(ctx context.Context, ids []identity.Identity, ts time.Time) error {
	var errs []error
	for _, id := range ids {
		if err := l.RecordDeparture(ctx, id, ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the counters.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Log) inconsistent(err error) {
	l.count(func(s *Stats) { s.Inconsistencies++ })
	l.report(err)
}

func (l *Log) count(f func(*Stats)) {
	l.mu.Lock()
	f(&l.stats)
	l.mu.Unlock()
}
