package monitor

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/presence"
)

var errNoMoreFrames = errors.New("end of stream")

// scriptedSource delivers n frames, failing the reads listed in fail.
type scriptedSource struct {
	n     int
	fail  map[int]bool
	reads int
	sent  int
}

func (s *scriptedSource) Read(context.Context) (image.Image, error) {
	s.reads++
	if s.fail[s.reads] {
		return nil, errors.New("glitch")
	}
	if s.sent >= s.n {
		return nil, errNoMoreFrames
	}
	s.sent++
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

type step struct {
	ids []identity.Identity
	err error
}

// scriptedObserver returns one step per call; after the script it sees nobody.
type scriptedObserver struct {
	steps []step
	calls int
}

func (o *scriptedObserver) Observe(context.Context, image.Image) (facematch.Result, error) {
	o.calls++
	if o.calls > len(o.steps) {
		return facematch.Result{Observed: identity.NewSet()}, nil
	}
	s := o.steps[o.calls-1]
	if s.err != nil {
		return facematch.Result{}, s.err
	}
	res := facematch.Result{Observed: identity.NewSet(s.ids...)}
	for _, id := range s.ids {
		res.Detections = append(res.Detections, facematch.Detection{Label: identity.Identified(id)})
	}
	return res, nil
}

type quitAfter struct {
	n     int
	shown int
}

func (d *quitAfter) Show(image.Image, []facematch.Detection) bool {
	d.shown++
	return d.shown >= d.n
}

type fixture struct {
	store   *mock.MockLogStore
	log     *attendance.Log
	tracker *presence.Tracker
}

func newFixture() fixture {
	store := mock.NewMockLogStore()
	return fixture{
		store:   store,
		log:     attendance.New(store, attendance.Options{}),
		tracker: presence.NewTracker(1),
	}
}

func clock() func() time.Time {
	ts := time.Date(2024, 4, 1, 8, 0, 0, 0, time.Local)
	return func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}
}

func ids(v ...identity.Identity) []identity.Identity { return v }

func TestRun_SingleVisit(t *testing.T) {
	f := newFixture()
	obs := &scriptedObserver{steps: []step{{}, {ids: ids("E1")}, {ids: ids("E1")}, {}}}
	src := &scriptedSource{n: 4}

	loop := New(src, obs, f.tracker, f.log, nil, Options{FrameSkip: 1, Now: clock()})
	res, err := loop.Run(context.Background())
	require.ErrorIs(t, err, ErrFrameAcquisition)
	require.ErrorIs(t, err, errNoMoreFrames)

	assert.Equal(t, 4, res.Captured)
	assert.Equal(t, 4, res.Processed)
	assert.NotEmpty(t, res.RunID)

	rows := f.store.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, identity.Identity("E1"), rows[0].EmpID)
	require.NotNil(t, rows[0].ExitTime)
	assert.True(t, rows[0].ExitTime.After(rows[0].EntryTime))
}

func TestRun_FrameSkip(t *testing.T) {
	f := newFixture()
	obs := &scriptedObserver{}
	display := &quitAfter{n: 6}

	loop := New(&scriptedSource{n: 100}, obs, f.tracker, f.log, display, Options{FrameSkip: 2})
	res, err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopQuit, res.StopReason)
	assert.Equal(t, 6, res.Captured)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 3, obs.calls)
	assert.Equal(t, 6, display.shown)
}

func TestRun_Canceled(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(&scriptedSource{n: 10}, &scriptedObserver{}, f.tracker, f.log, nil, Options{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopCanceled, res.StopReason)
	assert.Zero(t, res.Captured)
}

func TestRun_FrameRetries(t *testing.T) {
	f := newFixture()
	src := &scriptedSource{n: 3, fail: map[int]bool{2: true}}

	// Without retries the glitch stops the loop.
	_, err := New(src, &scriptedObserver{}, f.tracker, f.log, nil, Options{FrameSkip: 1}).Run(context.Background())
	require.ErrorIs(t, err, ErrFrameAcquisition)
	assert.Equal(t, 1, src.sent)

	src = &scriptedSource{n: 3, fail: map[int]bool{2: true}}
	res, err := New(src, &scriptedObserver{}, f.tracker, f.log, nil, Options{FrameSkip: 1, FrameRetries: 1}).Run(context.Background())
	require.ErrorIs(t, err, errNoMoreFrames)
	assert.Equal(t, 3, res.Captured)
}

func TestRun_ObserveFailureLeavesPresence(t *testing.T) {
	f := newFixture()
	obs := &scriptedObserver{steps: []step{
		{ids: ids("E1")},
		{err: errors.New("embedding service timeout")},
		{ids: ids("E1")},
	}}

	res, err := New(&scriptedSource{n: 3}, obs, f.tracker, f.log, nil, Options{FrameSkip: 1}).Run(context.Background())
	require.ErrorIs(t, err, ErrFrameAcquisition)
	assert.Equal(t, 1, res.FailedFrames)
	assert.Equal(t, 2, res.Processed)

	// The failed frame neither departed nor re-arrived E1.
	rows := f.store.Rows()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Open())
	assert.Equal(t, ids("E1"), f.tracker.Present())
}

func TestRun_TooManyObserveFailures(t *testing.T) {
	f := newFixture()
	steps := make([]step, 20)
	for i := range steps {
		steps[i] = step{err: errors.New("connection refused")}
	}

	res, err := New(&scriptedSource{n: 100}, &scriptedObserver{steps: steps}, f.tracker, f.log, nil, Options{FrameSkip: 1}).Run(context.Background())
	require.ErrorIs(t, err, ErrRecognition)
	assert.Equal(t, 10, res.FailedFrames)
}

func TestRun_StoreErrorIsFatal(t *testing.T) {
	f := newFixture()
	f.store.OpenEntryError = errors.New("database is locked")
	obs := &scriptedObserver{steps: []step{{ids: ids("E1")}}}

	_, err := New(&scriptedSource{n: 5}, obs, f.tracker, f.log, nil, Options{FrameSkip: 1}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "database is locked")
	assert.NotErrorIs(t, err, ErrFrameAcquisition)
}

func TestRun_CloseOnExit(t *testing.T) {
	f := newFixture()
	obs := &scriptedObserver{steps: []step{{ids: ids("E1", "E2")}, {ids: ids("E1", "E2")}}}
	display := &quitAfter{n: 2}

	res, err := New(&scriptedSource{n: 10}, obs, f.tracker, f.log, display, Options{FrameSkip: 1, CloseOnExit: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopQuit, res.StopReason)

	open, err := f.store.OpenEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Len(t, f.store.Rows(), 2)
}

func TestRun_KeepsRowsOpenByDefault(t *testing.T) {
	f := newFixture()
	obs := &scriptedObserver{steps: []step{{ids: ids("E1")}}}

	_, err := New(&scriptedSource{n: 10}, obs, f.tracker, f.log, &quitAfter{n: 1}, Options{FrameSkip: 1}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.OpenCount("E1"))
}

// ctxStore fails writes on a done context the way database/sql does and
// runs afterOpen after every stored arrival.
type ctxStore struct {
	*mock.MockLogStore
	afterOpen func()
}

func (s *ctxStore) OpenEntry(ctx context.Context, id identity.Identity, ts time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.MockLogStore.OpenEntry(ctx, id, ts)
	if err == nil && s.afterOpen != nil {
		s.afterOpen()
	}
	return n, err
}

func (s *ctxStore) CloseEntry(ctx context.Context, id identity.Identity, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MockLogStore.CloseEntry(ctx, id, ts)
}

func TestRun_CancelDuringWritesCompletesFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &ctxStore{MockLogStore: mock.NewMockLogStore(), afterOpen: cancel}
	var reported []error
	log := attendance.New(store, attendance.Options{Report: func(err error) { reported = append(reported, err) }})
	tracker := presence.NewTracker(1)
	obs := &scriptedObserver{steps: []step{{ids: ids("A", "B")}}}

	res, err := New(&scriptedSource{n: 10}, obs, tracker, log, nil, Options{FrameSkip: 1}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopCanceled, res.StopReason)
	assert.Equal(t, 1, res.Processed)

	// Every arrival the tracker applied has its row.
	assert.Equal(t, ids("A", "B"), tracker.Present())
	assert.Equal(t, 1, store.OpenCount("A"))
	assert.Equal(t, 1, store.OpenCount("B"))
	assert.Empty(t, reported)
	assert.Equal(t, 2, log.Stats().Arrivals)
}

func TestRun_CancelDuringWritesStillClosesDepartures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &ctxStore{MockLogStore: mock.NewMockLogStore()}
	log := attendance.New(store, attendance.Options{})
	tracker := presence.NewTracker(1)
	obs := &scriptedObserver{steps: []step{{ids: ids("A")}, {ids: ids("C")}}}
	src := &scriptedSource{n: 10}

	loop := New(src, obs, tracker, log, nil, Options{FrameSkip: 1})
	// Cancel on the arrival of C, before A's departure is written.
	store.afterOpen = func() {
		if store.OpenCount("C") == 1 {
			cancel()
		}
	}

	res, err := loop.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopCanceled, res.StopReason)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 0, store.OpenCount("A"))
	assert.Equal(t, 1, store.OpenCount("C"))
}

// cancelingObserver cancels the run while a frame is being recognised.
type cancelingObserver struct {
	cancel context.CancelFunc
}

func (o *cancelingObserver) Observe(ctx context.Context, _ image.Image) (facematch.Result, error) {
	o.cancel()
	return facematch.Result{}, ctx.Err()
}

func TestRun_CancelDuringObserveLeavesPresence(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := New(&scriptedSource{n: 10}, &cancelingObserver{cancel: cancel}, f.tracker, f.log, nil, Options{FrameSkip: 1}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopCanceled, res.StopReason)
	assert.Zero(t, res.Processed)
	assert.Zero(t, res.FailedFrames)
	assert.Empty(t, f.tracker.Present())
	assert.Empty(t, f.store.Rows())
}

func TestRun_CloseStaleReplacesRowAtomically(t *testing.T) {
	stale := database.LogRow{EmpID: "E1", EntryTime: time.Date(2024, 3, 31, 17, 0, 0, 0, time.Local)}

	t.Run("replaced", func(t *testing.T) {
		store := mock.NewMockLogStore()
		store.AddRow(stale)
		log := attendance.New(store, attendance.Options{Policy: attendance.PolicyCloseStale})
		obs := &scriptedObserver{steps: []step{{ids: ids("E1")}}}

		_, err := New(&scriptedSource{n: 10}, obs, presence.NewTracker(1), log, &quitAfter{n: 1}, Options{FrameSkip: 1}).Run(context.Background())
		require.NoError(t, err)

		rows := store.Rows()
		require.Len(t, rows, 2)
		assert.False(t, rows[0].Open())
		assert.True(t, rows[1].Open())
		assert.Equal(t, 1, store.OpenCount("E1"))
	})

	t.Run("store failure keeps stale row", func(t *testing.T) {
		store := mock.NewMockLogStore()
		store.AddRow(stale)
		store.ReopenEntryError = errors.New("connection reset")
		log := attendance.New(store, attendance.Options{Policy: attendance.PolicyCloseStale})
		obs := &scriptedObserver{steps: []step{{ids: ids("E1")}}}

		_, err := New(&scriptedSource{n: 10}, obs, presence.NewTracker(1), log, nil, Options{FrameSkip: 1}).Run(context.Background())
		require.ErrorContains(t, err, "connection reset")

		rows := store.Rows()
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Open())
		assert.Equal(t, stale.EntryTime, rows[0].EntryTime)
	})
}
