package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/config"
)

func newRunFlagsCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "run"}
	addRunFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestApplyRunFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "no flags keeps config",
			args: nil,
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, config.Defaults(), cfg)
			},
		},
		{
			name: "camera and gallery",
			args: []string{"--camera", "rtsp://cam/stream", "--gallery", "staff.gob"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "rtsp://cam/stream", cfg.Camera.Source)
				assert.Equal(t, "staff.gob", cfg.Gallery.Path)
			},
		},
		{
			name: "presence settings",
			args: []string{"--depart-after", "3", "--double-arrival", "close-stale", "--close-on-exit"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 3, cfg.Presence.DepartAfter)
				assert.Equal(t, config.DoubleArrivalCloseStale, cfg.Presence.DoubleArrival)
				assert.True(t, cfg.Presence.CloseOnExit)
			},
		},
		{
			name: "matching and throughput",
			args: []string{"--threshold", "0.5", "--frame-skip", "4"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.InDelta(t, 0.5, cfg.Matcher.Threshold, 1e-9)
				assert.Equal(t, 4, cfg.Camera.FrameSkip)
			},
		},
		{
			name: "headless disables display",
			args: []string{"--headless", "--status-addr", ":8080"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.False(t, cfg.Camera.Display)
				assert.Equal(t, ":8080", cfg.Status.Addr)
			},
		},
		{
			name: "headless=false leaves display alone",
			args: []string{"--headless=false"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.True(t, cfg.Camera.Display)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			applyRunFlags(newRunFlagsCmd(t, tt.args...), cfg)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfigValidatesFlags(t *testing.T) {
	t.Setenv("ATTENDANCE_CONFIG", "")
	t.Setenv("DOUBLE_ARRIVAL", "")

	c := newRunFlagsCmd(t, "--double-arrival", "overwrite")
	_, err := loadConfig(func(cfg *config.Config) { applyRunFlags(c, cfg) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overwrite")

	c = newRunFlagsCmd(t, "--double-arrival", "close-stale")
	cfg, err := loadConfig(func(cfg *config.Config) { applyRunFlags(c, cfg) })
	require.NoError(t, err)
	assert.Equal(t, config.DoubleArrivalCloseStale, cfg.Presence.DoubleArrival)
}
