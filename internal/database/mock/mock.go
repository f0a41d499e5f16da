// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// MockLogStore is an in-memory implementation of database.LogWriter
type MockLogStore struct {
	mu     sync.RWMutex
	rows   []database.LogRow
	nextID int64

	// Error injection
	OpenEntryError   error
	CloseEntryError  error
	ReopenEntryError error
	ListLogsError    error
	FindOpenError    error
}

// NewMockLogStore creates a new empty mock store
func NewMockLogStore() *MockLogStore {
	return &MockLogStore{nextID: 1}
}

// AddRow inserts a row as-is, bypassing the open row check. Used to seed
// inconsistent states such as duplicate open rows left by a crash.
func (m *MockLogStore) AddRow(row database.LogRow) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	row.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, row)
	return row.ID
}

// Rows returns a copy of every row in insertion order
func (m *MockLogStore) Rows() []database.LogRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.LogRow, len(m.rows))
	copy(out, m.rows)
	return out
}

// OpenEntry inserts an open row
func (m *MockLogStore) OpenEntry(ctx context.Context, empID identity.Identity, entry time.Time) (int64, error) {
	if m.OpenEntryError != nil {
		return 0, m.OpenEntryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.EmpID == empID && r.Open() {
			return 0, database.ErrOpenRowExists
		}
	}

	id := m.nextID
	m.nextID++
	m.rows = append(m.rows, database.LogRow{ID: id, EmpID: empID, EntryTime: entry.Truncate(time.Second)})
	return id, nil
}

// CloseEntry closes every open row of the identity
func (m *MockLogStore) CloseEntry(ctx context.Context, empID identity.Identity, exit time.Time) error {
	if m.CloseEntryError != nil {
		return m.CloseEntryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	exit = exit.Truncate(time.Second)
	closed := 0
	for i := range m.rows {
		if m.rows[i].EmpID == empID && m.rows[i].Open() {
			ts := exit
			m.rows[i].ExitTime = &ts
			closed++
		}
	}
	if closed == 0 {
		return database.ErrNoOpenRow
	}
	return nil
}

// ReopenEntry closes every open row of the identity and inserts a new open
// row. With ReopenEntryError set nothing changes.
func (m *MockLogStore) ReopenEntry(ctx context.Context, empID identity.Identity, ts time.Time) (int64, error) {
	if m.ReopenEntryError != nil {
		return 0, m.ReopenEntryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ts = ts.Truncate(time.Second)
	for i := range m.rows {
		if m.rows[i].EmpID == empID && m.rows[i].Open() {
			exit := ts
			m.rows[i].ExitTime = &exit
		}
	}

	id := m.nextID
	m.nextID++
	m.rows = append(m.rows, database.LogRow{ID: id, EmpID: empID, EntryTime: ts})
	return id, nil
}

// ListLogs returns rows newest first
func (m *MockLogStore) ListLogs(ctx context.Context, filter database.LogFilter) ([]database.LogRow, error) {
	if m.ListLogsError != nil {
		return nil, m.ListLogsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.LogRow
	for i := len(m.rows) - 1; i >= 0; i-- {
		r := m.rows[i]
		if filter.EmpID != "" && r.EmpID != filter.EmpID {
			continue
		}
		if filter.OpenOnly && !r.Open() {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// FindOpen returns the open row for an identity
func (m *MockLogStore) FindOpen(ctx context.Context, empID identity.Identity) (*database.LogRow, error) {
	if m.FindOpenError != nil {
		return nil, m.FindOpenError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rows {
		if r.EmpID == empID && r.Open() {
			return &r, nil
		}
	}
	return nil, nil
}

// OpenEntries returns every open row ordered by entry time
func (m *MockLogStore) OpenEntries(ctx context.Context) ([]database.LogRow, error) {
	if m.ListLogsError != nil {
		return nil, m.ListLogsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.LogRow
	for _, r := range m.rows {
		if r.Open() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

// OpenCount returns the number of open rows for an identity
func (m *MockLogStore) OpenCount(empID identity.Identity) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.rows {
		if r.EmpID == empID && r.Open() {
			n++
		}
	}
	return n
}
