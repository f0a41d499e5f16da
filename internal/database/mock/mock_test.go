package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/database"
)

func TestMockLogStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMockLogStore()
	t0 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.Local)

	id, err := m.OpenEntry(ctx, "E1", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = m.OpenEntry(ctx, "E1", t0.Add(time.Minute))
	require.ErrorIs(t, err, database.ErrOpenRowExists)

	require.NoError(t, m.CloseEntry(ctx, "E1", t0.Add(time.Hour)))
	require.ErrorIs(t, m.CloseEntry(ctx, "E1", t0.Add(2*time.Hour)), database.ErrNoOpenRow)

	rows := m.Rows()
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ExitTime)
	assert.Equal(t, t0.Add(time.Hour), *rows[0].ExitTime)
}

func TestMockLogStore_ListLogs(t *testing.T) {
	ctx := context.Background()
	m := NewMockLogStore()
	t0 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.Local)

	_, _ = m.OpenEntry(ctx, "E1", t0)
	_, _ = m.OpenEntry(ctx, "E2", t0.Add(time.Second))
	_ = m.CloseEntry(ctx, "E1", t0.Add(time.Minute))
	_, _ = m.OpenEntry(ctx, "E1", t0.Add(2*time.Minute))

	all, err := m.ListLogs(ctx, database.LogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)

	open, err := m.ListLogs(ctx, database.LogFilter{OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	e1, err := m.ListLogs(ctx, database.LogFilter{EmpID: "E1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, e1, 1)
	assert.Equal(t, int64(3), e1[0].ID)

	entries, err := m.OpenEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "E2", string(entries[0].EmpID))
}

func TestMockLogStore_ReopenEntry(t *testing.T) {
	ctx := context.Background()
	m := NewMockLogStore()
	t0 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.Local)

	_, err := m.OpenEntry(ctx, "E1", t0)
	require.NoError(t, err)

	m.ReopenEntryError = errors.New("tx aborted")
	_, err = m.ReopenEntry(ctx, "E1", t0.Add(time.Hour))
	require.Error(t, err)
	assert.Len(t, m.Rows(), 1)
	assert.Equal(t, 1, m.OpenCount("E1"))

	m.ReopenEntryError = nil
	id, err := m.ReopenEntry(ctx, "E1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	rows := m.Rows()
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].ExitTime)
	assert.Equal(t, t0.Add(time.Hour), *rows[0].ExitTime)
	assert.True(t, rows[1].Open())
	assert.Equal(t, 1, m.OpenCount("E1"))
}
