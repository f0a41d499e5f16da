// Package monitor runs the capture → match → presence → log pipeline.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// ErrFrameAcquisition is returned when the frame source stops delivering.
var ErrFrameAcquisition = errors.New("frame acquisition failed")

// ErrRecognition is returned after too many consecutive frames failed to
// be observed.
var ErrRecognition = errors.New("face recognition keeps failing")

// FrameSource delivers frames.
type FrameSource interface {
	Read(ctx context.Context) (image.Image, error)
}

// Observer turns a frame into the identities seen in it.
type Observer interface {
	Observe(ctx context.Context, img image.Image) (facematch.Result, error)
}

// Tracker diffs observed sets against the present set.
type Tracker interface {
	Update(observed identity.Set) (arrived, departed identity.Set)
	Present() []identity.Identity
}

// Recorder persists transitions.
type Recorder interface {
	RecordArrival(ctx context.Context, id identity.Identity, ts time.Time) error
	RecordDeparture(ctx context.Context, id identity.Identity, ts time.Time) error
	CloseAll(ctx context.Context, ids []identity.Identity, ts time.Time) error
}

// Display shows a frame and reports whether quit was requested.
type Display interface {
	Show(img image.Image, detections []facematch.Detection) (quit bool)
}

// Stop reasons reported in Result.
const (
	StopQuit     = "quit"
	StopCanceled = "canceled"
)

// Options tunes the loop.
type Options struct {
	FrameSkip    int  // process every Nth captured frame
	FrameRetries int  // extra read attempts before giving up
	CloseOnExit  bool // record departures for everyone present on stop
	Logger       *log.Logger
	Now          func() time.Time
}

// Result summarises a finished run.
type Result struct {
	RunID        string
	Captured     int
	Processed    int
	FailedFrames int
	StopReason   string
}

// Loop wires the pipeline components together.
type Loop struct {
	source   FrameSource
	observer Observer
	tracker  Tracker
	recorder Recorder
	display  Display
	opts     Options
	runID    string
}

// New creates a loop. display may be nil for headless runs.
func New(source FrameSource, observer Observer, tracker Tracker, recorder Recorder, display Display, opts Options) *Loop {
	if opts.FrameSkip < 1 {
		opts.FrameSkip = constants.DefaultFrameSkip
	}
	if opts.FrameRetries < 0 {
		opts.FrameRetries = 0
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loop{
		source:   source,
		observer: observer,
		tracker:  tracker,
		recorder: recorder,
		display:  display,
		opts:     opts,
		runID:    uuid.NewString(),
	}
}

// RunID identifies this loop in logs and the status API.
func (l *Loop) RunID() string {
	return l.runID
}

// Run processes frames until quit is pressed, ctx is canceled, or a fatal
// error occurs. Stop requests take effect between frames.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: l.runID}
	logger := l.opts.Logger
	logger.Printf("run %s started (frame skip %d)", l.runID, l.opts.FrameSkip)

	var (
		lastDetections []facematch.Detection
		failures       int
		runErr         error
	)

loop:
	for {
		if ctx.Err() != nil {
			res.StopReason = StopCanceled
			break
		}

		img, err := l.readFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				res.StopReason = StopCanceled
				break
			}
			runErr = fmt.Errorf("%w after %d frames: %w", ErrFrameAcquisition, res.Captured, err)
			break
		}
		res.Captured++

		if res.Captured%l.opts.FrameSkip == 0 {
			detections, err := l.process(ctx, img)
			switch {
			case err == nil:
				failures = 0
				lastDetections = detections
				res.Processed++
			case errors.Is(err, errObserve) && ctx.Err() != nil:
				// Canceled before presence changed.
				res.StopReason = StopCanceled
				break loop
			case errors.Is(err, errObserve):
				failures++
				res.FailedFrames++
				logger.Printf("Warning: skipping frame %d: %v", res.Captured, err)
				if failures >= constants.MaxObserveFailures {
					runErr = fmt.Errorf("%w: %d consecutive frames: %w", ErrRecognition, failures, err)
					break loop
				}
			default:
				runErr = err
				break loop
			}
		}

		if l.display != nil && l.display.Show(img, lastDetections) {
			res.StopReason = StopQuit
			break
		}
	}

	if l.opts.CloseOnExit {
		present := l.tracker.Present()
		if len(present) > 0 {
			// The run context may already be canceled.
			if err := l.recorder.CloseAll(context.WithoutCancel(ctx), present, l.opts.Now()); err != nil {
				runErr = errors.Join(runErr, fmt.Errorf("closing open rows: %w", err))
			}
		}
	}

	logger.Printf("run %s stopped: captured %d, processed %d, failed %d", l.runID, res.Captured, res.Processed, res.FailedFrames)
	return res, runErr
}

func (l *Loop) readFrame(ctx context.Context) (image.Image, error) {
	var err error
	for attempt := 0; attempt <= l.opts.FrameRetries; attempt++ {
		var img image.Image
		if img, err = l.source.Read(ctx); err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < l.opts.FrameRetries {
			l.opts.Logger.Printf("Warning: frame read failed (attempt %d/%d): %v", attempt+1, l.opts.FrameRetries+1, err)
		}
	}
	return nil, err
}

var errObserve = errors.New("observe failed")

// process runs one frame through matching, presence and the log. Observe
// failures leave presence untouched; store failures are fatal. Once the
// tracker is updated every write of the frame completes even if ctx is
// canceled.
func (l *Loop) process(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
	result, err := l.observer.Observe(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errObserve, err)
	}

	arrived, departed := l.tracker.Update(result.Observed)
	ts := l.opts.Now()
	ctx = context.WithoutCancel(ctx)

	for _, id := range arrived.Sorted() {
		if err := l.recorder.RecordArrival(ctx, id, ts); err != nil {
			return nil, err
		}
	}
	for _, id := range departed.Sorted() {
		if err := l.recorder.RecordDeparture(ctx, id, ts); err != nil {
			return nil, err
		}
	}
	return result.Detections, nil
}
