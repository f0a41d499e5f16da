package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

var (
	// ErrOpenRowExists is returned when opening a row for an identity that
	// already has one.
	ErrOpenRowExists = errors.New("open log row already exists")
	// ErrNoOpenRow is returned when closing a row for an identity that has none.
	ErrNoOpenRow = errors.New("no open log row")
)

// LogRow is one attendance record. ExitTime is nil while the row is open.
type LogRow struct {
	ID        int64
	EmpID     identity.Identity
	EntryTime time.Time
	ExitTime  *time.Time
}

// Open reports whether the row has no exit time yet.
func (r LogRow) Open() bool {
	return r.ExitTime == nil
}

type logRowJSON struct {
	ID        int64   `json:"id"`
	EmpID     string  `json:"empid"`
	EntryTime string  `json:"entry_time"`
	ExitTime  *string `json:"exit_time"`
}

// MarshalJSON renders timestamps in the stored layout, exit_time null while open.
func (r LogRow) MarshalJSON() ([]byte, error) {
	out := logRowJSON{ID: r.ID, EmpID: string(r.EmpID), EntryTime: FormatTime(r.EntryTime)}
	if r.ExitTime != nil {
		exit := FormatTime(*r.ExitTime)
		out.ExitTime = &exit
	}
	return json.Marshal(out)
}

// LogFilter narrows ListLogs results. Zero values mean no restriction.
type LogFilter struct {
	EmpID    identity.Identity
	OpenOnly bool
	Limit    int
}

// FormatTime renders ts in the stored timestamp layout.
func FormatTime(ts time.Time) string {
	return ts.Format(constants.TimestampLayout)
}

// ParseTime parses a stored timestamp in local time.
func ParseTime(s string) (time.Time, error) {
	ts, err := time.ParseInLocation(constants.TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return ts, nil
}
