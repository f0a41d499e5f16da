package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/sqlstore"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/monitor"
	"github.com/kozaktomas/face-attendance/internal/presence"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the camera and log entries and exits",
	Long: `Watch the camera and log entries and exits.

Each processed frame is matched against the gallery. A person seen who was
not present opens a log row; a present person no longer seen closes it.
Press q in the preview window or Ctrl+C to stop; f and n switch the window
between fullscreen and normal.

Examples:
  # Default webcam, preview window
  attendance run

  # RTSP stream without a window, status API on :8080
  attendance run --camera rtsp://cam.local/stream --headless --status-addr :8080`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(c *cobra.Command) {
	c.Flags().String("camera", "", "Webcam index or stream URL (default from CAMERA_SOURCE)")
	c.Flags().String("gallery", "", "Gallery file (default from GALLERY_PATH)")
	c.Flags().String("cascade", "", "Haar cascade XML for face detection (default from CASCADE_PATH)")
	c.Flags().Float64("threshold", 0, "Acceptance distance threshold, exclusive (default from MATCH_THRESHOLD)")
	c.Flags().Int("frame-skip", 0, "Process every Nth captured frame (default from FRAME_SKIP)")
	c.Flags().Int("depart-after", 0, "Consecutive missed frames before a departure (default from DEPART_AFTER)")
	c.Flags().String("double-arrival", "", "Policy for an arrival with an open row: keep or close-stale")
	c.Flags().Bool("close-on-exit", false, "Close open rows of everyone present when stopping")
	c.Flags().Bool("headless", false, "Do not open a preview window")
	c.Flags().String("status-addr", "", "Serve the status API on this address (default from STATUS_ADDR)")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if changed(cmd, "camera") {
		cfg.Camera.Source = mustGetString(cmd, "camera")
	}
	if changed(cmd, "gallery") {
		cfg.Gallery.Path = mustGetString(cmd, "gallery")
	}
	if changed(cmd, "cascade") {
		cfg.Camera.CascadePath = mustGetString(cmd, "cascade")
	}
	if changed(cmd, "threshold") {
		cfg.Matcher.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if changed(cmd, "frame-skip") {
		cfg.Camera.FrameSkip = mustGetInt(cmd, "frame-skip")
	}
	if changed(cmd, "depart-after") {
		cfg.Presence.DepartAfter = mustGetInt(cmd, "depart-after")
	}
	if changed(cmd, "double-arrival") {
		cfg.Presence.DoubleArrival = mustGetString(cmd, "double-arrival")
	}
	if changed(cmd, "close-on-exit") {
		cfg.Presence.CloseOnExit = mustGetBool(cmd, "close-on-exit")
	}
	if changed(cmd, "headless") && mustGetBool(cmd, "headless") {
		cfg.Camera.Display = false
	}
	if changed(cmd, "status-addr") {
		cfg.Status.Addr = mustGetString(cmd, "status-addr")
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) { applyRunFlags(cmd, cfg) })
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default()

	// Setup: every failure here stops before the first frame.
	metric, err := gallery.ParseMetric(cfg.Matcher.Metric)
	if err != nil {
		return err
	}
	index, err := gallery.ParseIndexKind(cfg.Gallery.Index)
	if err != nil {
		return err
	}
	g, err := gallery.Load(cfg.Gallery.Path, gallery.Options{Metric: metric, Index: index})
	if err != nil {
		if errors.Is(err, gallery.ErrUnavailable) {
			return fmt.Errorf("gallery unavailable, run 'attendance encode' first: %w", err)
		}
		return fmt.Errorf("loading gallery: %w", err)
	}
	fmt.Printf("Loaded gallery with %d identities (%s, %s index)\n", g.Len(), g.Metric(), index)

	policy, err := attendance.ParsePolicy(cfg.Presence.DoubleArrival)
	if err != nil {
		return err
	}

	store, err := sqlstore.Initialize(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize %s database: %w", cfg.Database.Driver, err)
	}
	defer store.Close()

	leftover, err := store.OpenEntries(ctx)
	if err != nil {
		return fmt.Errorf("reading open rows: %w", err)
	}
	for _, row := range leftover {
		logger.Printf("Warning: %s still has open row %d from %s", row.EmpID, row.ID, database.FormatTime(row.EntryTime))
	}

	source, err := camera.OpenSource(camera.SourceConfig{
		Device: cfg.Camera.Source,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	})
	if err != nil {
		return fmt.Errorf("camera setup: %w", err)
	}
	defer source.Close()

	var detector facematch.Detector
	if cfg.Camera.CascadePath != "" {
		cascade, err := camera.NewCascadeDetector(cfg.Camera.CascadePath)
		if err != nil {
			return fmt.Errorf("face detector setup: %w", err)
		}
		defer cascade.Close()
		detector = cascade
	}

	encoder := fingerprint.NewFaceEncoder(fingerprint.NewEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Timeout))
	matcher := facematch.NewFrameMatcher(detector, encoder, g, facematch.Options{
		Threshold:    cfg.Matcher.Threshold,
		FrameTimeout: cfg.Embedding.Timeout,
	})

	tracker := presence.NewTracker(cfg.Presence.DepartAfter)
	attendanceLog := attendance.New(store, attendance.Options{Policy: policy, Logger: logger})

	var display monitor.Display
	if cfg.Camera.Display {
		window := camera.NewWindow("Face Attendance")
		defer window.Close()
		display = window
	}

	loop := monitor.New(source, matcher, tracker, attendanceLog, display, monitor.Options{
		FrameSkip:    cfg.Camera.FrameSkip,
		FrameRetries: cfg.Camera.FrameRetries,
		CloseOnExit:  cfg.Presence.CloseOnExit,
		Logger:       logger,
	})

	if cfg.Status.Addr != "" {
		srv := web.NewServer(cfg.Status.Addr, cfg.Status.AllowedOrigins, handlers.NewStatusHandler(loop.RunID(), tracker, attendanceLog, store))
		go func() {
			if err := srv.Start(); err != nil {
				logger.Printf("Warning: status server stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Printf("Warning: %v", err)
			}
		}()
	}

	fmt.Printf("Watching camera %s (threshold %.2f, every %d frame(s), departure after %d missed)\n",
		cfg.Camera.Source, matcher.Threshold(), cfg.Camera.FrameSkip, tracker.DepartAfter())

	res, runErr := loop.Run(ctx)
	stats := attendanceLog.Stats()
	fmt.Printf("\nStopped (%s): %d entries, %d exits, %d inconsistencies over %d processed frames\n",
		stopReason(res, runErr), stats.Arrivals, stats.Departures, stats.Inconsistencies, res.Processed)

	if runErr != nil {
		if errors.Is(runErr, monitor.ErrFrameAcquisition) {
			return fmt.Errorf("camera stopped delivering frames: %w", runErr)
		}
		return runErr
	}
	return nil
}

func stopReason(res monitor.Result, err error) string {
	if err != nil {
		return "error"
	}
	return res.StopReason
}
