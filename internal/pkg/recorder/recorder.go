package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/meowmeet/recpipe/internal/pkg/api"
	"github.com/meowmeet/recpipe/internal/pkg/capture"
	"github.com/meowmeet/recpipe/internal/pkg/uploader"
)

// State of the recording session
type State int

const (
	// StateIdle - no active recording
	StateIdle State = iota
	// StateRecording - capture running
	StateRecording
	// StatePaused - capture suspended
	StatePaused
	// StateStopping - tail flush and completion in progress
	StateStopping
	// StateCompleted - last session finished OK
	StateCompleted
	// StateFailed - last session ended with failure
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrAlreadyRecording indicates a session is active
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording indicates no session to stop
	ErrNotRecording = errors.New("no active recording")
)

const (
	defaultMaxDuration  = 60 * time.Minute
	defaultWarnDuration = 55 * time.Minute
)

// Session is a snapshot of the current recording
type Session struct {
	ID               string
	RecordingID      string
	State            State
	StartedAt        time.Time
	SegmentCount     int
	SecondaryEnabled bool
}

// Capture drives the audio process
type Capture interface {
	Start(ctx context.Context, req capture.StartRequest) (capture.StartResult, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) (int, error)
	Segments() <-chan capture.Segment
}

// Uploader delivers segments to storage
type Uploader interface {
	Upload(ctx context.Context, recordingID string, index int, payload []byte, mime string) (string, error)
	FlushCache(ctx context.Context, recordingID string, mime string) (int, error)
}

// Registrar is the server-side recording API
type Registrar interface {
	CreateRecording(ctx context.Context, in *api.CreateRecordingInput) (string, error)
	RecordSegmentArrival(ctx context.Context, recordingID string, index int, in *api.SegmentArrivalInput) error
	CompleteRecording(ctx context.Context, recordingID string, durationSeconds int32) error
	FailRecording(ctx context.Context, recordingID, reason string) error
}

// Indicator shows the session state to the user
type Indicator interface {
	Show(st State)
}

// Data is coordinator configuration
type Data struct {
	Capture   Capture
	Uploader  Uploader
	Registrar Registrar
	Indicator Indicator

	Email, Title string
	MaxDuration  time.Duration
	WarnDuration time.Duration
	WarnF        func(left time.Duration)
}

// Coordinator owns the single recording session lifecycle
type Coordinator struct {
	capture   Capture
	uploader  Uploader
	registrar Registrar
	indicator Indicator

	email, title string
	maxDuration  time.Duration
	warnDuration time.Duration
	warnF        func(left time.Duration)

	lock      sync.Mutex
	session   *Session
	stopTimer *time.Timer
	warnTimer *time.Timer

	fwdOnce sync.Once
}

// NewCoordinator creates coordinator instance
func NewCoordinator(data *Data) (*Coordinator, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	res := &Coordinator{capture: data.Capture, uploader: data.Uploader,
		registrar: data.Registrar, indicator: data.Indicator,
		email: data.Email, title: data.Title,
		maxDuration: data.MaxDuration, warnDuration: data.WarnDuration, warnF: data.WarnF,
		session: &Session{ID: uuid.NewString(), State: StateIdle}}
	if res.maxDuration <= 0 {
		res.maxDuration = defaultMaxDuration
	}
	if res.warnDuration <= 0 {
		res.warnDuration = defaultWarnDuration
	}
	return res, nil
}

func validate(data *Data) error {
	if data == nil {
		return fmt.Errorf("no data")
	}
	if data.Capture == nil {
		return fmt.Errorf("no capture")
	}
	if data.Uploader == nil {
		return fmt.Errorf("no uploader")
	}
	if data.Registrar == nil {
		return fmt.Errorf("no registrar")
	}
	return nil
}

// Start begins a new recording session
func (c *Coordinator) Start(ctx context.Context, primaryRef, secondaryRef string) error {
	c.lock.Lock()
	if c.session.State == StateRecording || c.session.State == StatePaused || c.session.State == StateStopping {
		c.lock.Unlock()
		return ErrAlreadyRecording
	}
	c.session = &Session{ID: c.session.ID, State: StateIdle}
	c.lock.Unlock()

	recID, err := c.registrar.CreateRecording(ctx, &api.CreateRecordingInput{Email: c.email, Title: c.title})
	if err != nil {
		return fmt.Errorf("can't create recording: %w", err)
	}
	res, err := c.capture.Start(ctx, capture.StartRequest{PrimaryRef: primaryRef,
		SecondaryRef: secondaryRef, EnableSecondary: secondaryRef != ""})
	if err != nil {
		if fErr := c.registrar.FailRecording(ctx, recID, err.Error()); fErr != nil {
			goapp.Log.Error().Err(fErr).Str("ID", recID).Msg("can't mark recording failed")
		}
		return fmt.Errorf("can't start capture: %w", err)
	}
	c.fwdOnce.Do(func() { go c.forwardLoop() })

	c.lock.Lock()
	c.session.RecordingID = recID
	c.session.State = StateRecording
	c.session.StartedAt = time.Now()
	c.session.SecondaryEnabled = res.SecondaryEnabled
	c.armTimers()
	c.lock.Unlock()

	c.show(StateRecording)
	goapp.Log.Info().Str("ID", recID).Bool("secondary", res.SecondaryEnabled).Msg("recording started")
	return nil
}

// Pause suspends capture, no-op unless recording
func (c *Coordinator) Pause(ctx context.Context) error {
	c.lock.Lock()
	if c.session.State != StateRecording {
		c.lock.Unlock()
		return nil
	}
	c.lock.Unlock()
	if err := c.capture.Pause(ctx); err != nil {
		return fmt.Errorf("can't pause: %w", err)
	}
	c.setState(StatePaused)
	c.show(StatePaused)
	return nil
}

// Resume continues capture, no-op unless paused.
// A dead primary stream error is passed to the caller
func (c *Coordinator) Resume(ctx context.Context) error {
	c.lock.Lock()
	if c.session.State != StatePaused {
		c.lock.Unlock()
		return nil
	}
	c.lock.Unlock()
	if err := c.capture.Resume(ctx); err != nil {
		return fmt.Errorf("can't resume: %w", err)
	}
	c.setState(StateRecording)
	c.show(StateRecording)
	return nil
}

// Stop ends the session. Segment delivery continues in the background
func (c *Coordinator) Stop(ctx context.Context) error {
	c.lock.Lock()
	if c.session.State != StateRecording && c.session.State != StatePaused {
		c.lock.Unlock()
		return ErrNotRecording
	}
	c.session.State = StateStopping
	c.disarmTimers()
	recID, startedAt := c.session.RecordingID, c.session.StartedAt
	c.lock.Unlock()
	c.show(StateStopping)

	_, err := c.capture.Stop(ctx)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("can't stop capture: %w", err)
	}
	if _, err := c.uploader.FlushCache(ctx, recID, capture.DefaultMimeType); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", recID).Msg("cache flush incomplete")
	}
	dur := int32(time.Since(startedAt).Seconds())
	if err := c.registrar.CompleteRecording(ctx, recID, dur); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("can't complete recording: %w", err)
	}
	c.setState(StateCompleted)
	c.show(StateIdle)
	goapp.Log.Info().Str("ID", recID).Int32("duration", dur).Msg("recording stopped")
	return nil
}

// Session returns a snapshot copy
func (c *Coordinator) Session() Session {
	c.lock.Lock()
	defer c.lock.Unlock()
	return *c.session
}

func (c *Coordinator) forwardLoop() {
	for seg := range c.capture.Segments() {
		c.lock.Lock()
		recID := c.session.RecordingID
		c.session.SegmentCount++
		c.lock.Unlock()
		go c.forward(recID, seg)
	}
}

func (c *Coordinator) forward(recID string, seg capture.Segment) {
	ctx, cancelF := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancelF()
	path, err := c.uploader.Upload(ctx, recID, seg.Index, seg.Payload, seg.MimeType)
	if err != nil {
		if errors.Is(err, uploader.ErrRetryExhausted) {
			goapp.Log.Warn().Str("ID", recID).Int("index", seg.Index).Msg("segment cached for later delivery")
			return
		}
		goapp.Log.Error().Err(err).Str("ID", recID).Int("index", seg.Index).Msg("can't upload segment")
		return
	}
	if err := c.registrar.RecordSegmentArrival(ctx, recID, seg.Index,
		&api.SegmentArrivalInput{StoragePath: path, SizeBytes: seg.SizeBytes, MimeType: seg.MimeType}); err != nil {
		goapp.Log.Error().Err(err).Str("ID", recID).Int("index", seg.Index).Msg("can't register segment")
	}
}

func (c *Coordinator) armTimers() {
	c.stopTimer = time.AfterFunc(c.maxDuration, func() {
		goapp.Log.Warn().Msg("max duration reached, stopping")
		ctx, cancelF := context.WithTimeout(context.Background(), time.Minute)
		defer cancelF()
		if err := c.Stop(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("can't auto-stop")
		}
	})
	if c.warnF != nil && c.warnDuration < c.maxDuration {
		left := c.maxDuration - c.warnDuration
		c.warnTimer = time.AfterFunc(c.warnDuration, func() { c.warnF(left) })
	}
}

func (c *Coordinator) disarmTimers() {
	if c.stopTimer != nil {
		c.stopTimer.Stop()
	}
	if c.warnTimer != nil {
		c.warnTimer.Stop()
	}
}

func (c *Coordinator) setState(st State) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.session.State = st
}

func (c *Coordinator) show(st State) {
	if c.indicator != nil {
		c.indicator.Show(st)
	}
}
