package recorder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/meowmeet/recpipe/internal/pkg/api"
	"github.com/meowmeet/recpipe/internal/pkg/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCapture struct {
	lock            sync.Mutex
	segCh           chan capture.Segment
	startErr        error
	resumeErr       error
	started, paused int
	resumed, stops  int
}

func newTestCapture() *testCapture {
	return &testCapture{segCh: make(chan capture.Segment, 10)}
}

func (c *testCapture) Start(ctx context.Context, req capture.StartRequest) (capture.StartResult, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.startErr != nil {
		return capture.StartResult{}, c.startErr
	}
	c.started++
	return capture.StartResult{SecondaryEnabled: req.EnableSecondary}, nil
}

func (c *testCapture) Pause(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.paused++
	return nil
}

func (c *testCapture) Resume(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.resumed++
	return c.resumeErr
}

func (c *testCapture) Stop(ctx context.Context) (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.stops++
	return 0, nil
}

func (c *testCapture) Segments() <-chan capture.Segment { return c.segCh }

type testUploader struct {
	lock    sync.Mutex
	uploads []int
	flushes int
	err     error
}

func (u *testUploader) Upload(ctx context.Context, recordingID string, index int, payload []byte, mime string) (string, error) {
	u.lock.Lock()
	defer u.lock.Unlock()
	u.uploads = append(u.uploads, index)
	return fmt.Sprintf("s/%s/segment_%d.pcm", recordingID, index), u.err
}

func (u *testUploader) FlushCache(ctx context.Context, recordingID string, mime string) (int, error) {
	u.lock.Lock()
	defer u.lock.Unlock()
	u.flushes++
	return 0, nil
}

type testRegistrar struct {
	lock        sync.Mutex
	created     int
	arrivals    []int
	completed   []int32
	failed      []string
	createErr   error
	completeErr error
}

func (r *testRegistrar) CreateRecording(ctx context.Context, in *api.CreateRecordingInput) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.createErr != nil {
		return "", r.createErr
	}
	r.created++
	return "rec-1", nil
}

func (r *testRegistrar) RecordSegmentArrival(ctx context.Context, recordingID string, index int, in *api.SegmentArrivalInput) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.arrivals = append(r.arrivals, index)
	return nil
}

func (r *testRegistrar) CompleteRecording(ctx context.Context, recordingID string, durationSeconds int32) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.completed = append(r.completed, durationSeconds)
	return r.completeErr
}

func (r *testRegistrar) FailRecording(ctx context.Context, recordingID, reason string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failed = append(r.failed, reason)
	return nil
}

func initCoordinator(t *testing.T) (*Coordinator, *testCapture, *testUploader, *testRegistrar) {
	t.Helper()
	cp, up, rg := newTestCapture(), &testUploader{}, &testRegistrar{}
	c, err := NewCoordinator(&Data{Capture: cp, Uploader: up, Registrar: rg, Email: "olia@o.lt"})
	require.Nil(t, err)
	return c, cp, up, rg
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)
	return ctx
}

func TestNewCoordinator_Fail(t *testing.T) {
	tests := []struct {
		name string
		data *Data
	}{
		{name: "Nil"},
		{name: "No capture", data: &Data{Uploader: &testUploader{}, Registrar: &testRegistrar{}}},
		{name: "No uploader", data: &Data{Capture: newTestCapture(), Registrar: &testRegistrar{}}},
		{name: "No registrar", data: &Data{Capture: newTestCapture(), Uploader: &testUploader{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCoordinator(tt.data)
			assert.NotNil(t, err)
		})
	}
}

func TestStart(t *testing.T) {
	c, cp, _, rg := initCoordinator(t)
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	assert.Equal(t, 1, cp.started)
	assert.Equal(t, 1, rg.created)
	s := c.Session()
	assert.Equal(t, StateRecording, s.State)
	assert.Equal(t, "rec-1", s.RecordingID)
	assert.False(t, s.SecondaryEnabled)
}

func TestStart_Twice(t *testing.T) {
	c, _, _, _ := initCoordinator(t)
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	err := c.Start(testCtx(t), "mic", "")
	assert.ErrorIs(t, err, ErrAlreadyRecording)
}

func TestStart_CaptureFails_MarksFailed(t *testing.T) {
	c, cp, _, rg := initCoordinator(t)
	cp.startErr = fmt.Errorf("olia err")
	err := c.Start(testCtx(t), "mic", "")
	require.NotNil(t, err)
	assert.Equal(t, 1, len(rg.failed))
	assert.Equal(t, StateIdle, c.Session().State)
}

func TestStart_RegistrarFails(t *testing.T) {
	c, cp, _, rg := initCoordinator(t)
	rg.createErr = fmt.Errorf("olia err")
	err := c.Start(testCtx(t), "mic", "")
	require.NotNil(t, err)
	assert.Equal(t, 0, cp.started)
}

func TestPauseResume(t *testing.T) {
	c, cp, _, _ := initCoordinator(t)
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	require.Nil(t, c.Pause(testCtx(t)))
	assert.Equal(t, StatePaused, c.Session().State)
	require.Nil(t, c.Resume(testCtx(t)))
	assert.Equal(t, StateRecording, c.Session().State)
	assert.Equal(t, 1, cp.paused)
	assert.Equal(t, 1, cp.resumed)
}

func TestPause_Idle_NoOp(t *testing.T) {
	c, cp, _, _ := initCoordinator(t)
	require.Nil(t, c.Pause(testCtx(t)))
	require.Nil(t, c.Resume(testCtx(t)))
	assert.Equal(t, 0, cp.paused)
	assert.Equal(t, 0, cp.resumed)
}

func TestResume_DeadStream(t *testing.T) {
	c, cp, _, _ := initCoordinator(t)
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	require.Nil(t, c.Pause(testCtx(t)))
	cp.resumeErr = capture.ErrDeadStream
	err := c.Resume(testCtx(t))
	assert.ErrorIs(t, err, capture.ErrDeadStream)
}

func TestStop(t *testing.T) {
	c, cp, up, rg := initCoordinator(t)
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	require.Nil(t, c.Stop(testCtx(t)))
	assert.Equal(t, 1, cp.stops)
	assert.Equal(t, 1, up.flushes)
	assert.Equal(t, 1, len(rg.completed))
	assert.Equal(t, StateCompleted, c.Session().State)
}

func TestStop_NotRecording(t *testing.T) {
	c, _, _, _ := initCoordinator(t)
	err := c.Stop(testCtx(t))
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestStop_ThenStartAgain(t *testing.T) {
	c, _, _, _ := initCoordinator(t)
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	require.Nil(t, c.Stop(testCtx(t)))
	assert.Nil(t, c.Start(testCtx(t), "mic", ""))
}

func TestForward_Segments(t *testing.T) {
	c, cp, up, rg := initCoordinator(t)
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	cp.segCh <- capture.Segment{Index: 0, Payload: []byte("a"), MimeType: capture.DefaultMimeType, SizeBytes: 1}
	cp.segCh <- capture.Segment{Index: 1, Payload: []byte("b"), MimeType: capture.DefaultMimeType, SizeBytes: 1}
	assert.Eventually(t, func() bool {
		rg.lock.Lock()
		defer rg.lock.Unlock()
		return len(rg.arrivals) == 2
	}, time.Second*2, time.Millisecond*5)
	up.lock.Lock()
	defer up.lock.Unlock()
	assert.Equal(t, 2, len(up.uploads))
	assert.Equal(t, 2, c.Session().SegmentCount)
}

func TestForward_UploadFails_NoArrival(t *testing.T) {
	c, cp, up, rg := initCoordinator(t)
	up.err = fmt.Errorf("olia err")
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	cp.segCh <- capture.Segment{Index: 0, Payload: []byte("a"), MimeType: capture.DefaultMimeType, SizeBytes: 1}
	assert.Eventually(t, func() bool {
		up.lock.Lock()
		defer up.lock.Unlock()
		return len(up.uploads) == 1
	}, time.Second*2, time.Millisecond*5)
	time.Sleep(time.Millisecond * 20)
	rg.lock.Lock()
	defer rg.lock.Unlock()
	assert.Equal(t, 0, len(rg.arrivals))
}

func TestMaxDuration_AutoStops(t *testing.T) {
	cp, up, rg := newTestCapture(), &testUploader{}, &testRegistrar{}
	c, err := NewCoordinator(&Data{Capture: cp, Uploader: up, Registrar: rg,
		MaxDuration: time.Millisecond * 30, WarnDuration: time.Millisecond * 10})
	require.Nil(t, err)
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	assert.Eventually(t, func() bool {
		cp.lock.Lock()
		defer cp.lock.Unlock()
		return cp.stops == 1
	}, time.Second*2, time.Millisecond*5)
	assert.Equal(t, StateCompleted, c.Session().State)
}

func TestWarn_Called(t *testing.T) {
	cp, up, rg := newTestCapture(), &testUploader{}, &testRegistrar{}
	warned := make(chan time.Duration, 1)
	c, err := NewCoordinator(&Data{Capture: cp, Uploader: up, Registrar: rg,
		MaxDuration: time.Second * 10, WarnDuration: time.Millisecond * 10,
		WarnF: func(left time.Duration) { warned <- left }})
	require.Nil(t, err)
	require.Nil(t, c.Start(testCtx(t), "mic", ""))
	defer func() { _ = c.Stop(testCtx(t)) }()
	select {
	case left := <-warned:
		assert.True(t, left > 0)
	case <-time.After(time.Second * 2):
		t.Fatal("no warning")
	}
}
