package database

import (
	"testing"
	"time"
)

func TestFormatParseTime(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 999, time.Local)

	s := FormatTime(ts)
	if s != "2024-03-09 07:05:01" {
		t.Fatalf("FormatTime = %q", s)
	}

	parsed, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime failed: %v", err)
	}
	if !parsed.Equal(ts.Truncate(time.Second)) {
		t.Errorf("ParseTime = %v, want %v", parsed, ts.Truncate(time.Second))
	}
}

func TestParseTime_Invalid(t *testing.T) {
	for _, s := range []string{"", "2024-03-09T07:05:01Z", "yesterday"} {
		if _, err := ParseTime(s); err == nil {
			t.Errorf("ParseTime(%q) expected error", s)
		}
	}
}

func TestLogRowOpen(t *testing.T) {
	now := time.Now()
	if !(LogRow{EntryTime: now}).Open() {
		t.Error("row without exit time should be open")
	}
	if (LogRow{EntryTime: now, ExitTime: &now}).Open() {
		t.Error("row with exit time should be closed")
	}
}

func TestLogRowMarshalJSON(t *testing.T) {
	entry := time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local)
	exit := entry.Add(time.Hour)

	open, err := LogRow{ID: 1, EmpID: "E1", EntryTime: entry}.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	want := `{"id":1,"empid":"E1","entry_time":"2024-03-09 07:05:01","exit_time":null}`
	if string(open) != want {
		t.Errorf("open row = %s, want %s", open, want)
	}

	closed, err := LogRow{ID: 2, EmpID: "E1", EntryTime: entry, ExitTime: &exit}.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	want = `{"id":2,"empid":"E1","entry_time":"2024-03-09 07:05:01","exit_time":"2024-03-09 08:05:01"}`
	if string(closed) != want {
		t.Errorf("closed row = %s, want %s", closed, want)
	}
}
