package mocks

import (
	"context"
	"io"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/meowmeet/recpipe/internal/pkg/api"
	"github.com/meowmeet/recpipe/internal/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	args := m.Called(ctx, name, r, fileSize)
	return args.Error(0)
}

// LoadFile func mock
func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return To[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertRecording(ctx context.Context, rec *persistence.Recording) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *DB) LoadRecording(ctx context.Context, id string) (*persistence.Recording, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Recording](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateRecording(ctx context.Context, rec *persistence.Recording) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *DB) BumpSegmentCount(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) UpsertSegment(ctx context.Context, seg *persistence.Segment) error {
	args := m.Called(ctx, seg)
	return args.Error(0)
}

func (m *DB) UpdateSegmentResult(ctx context.Context, seg *persistence.Segment) error {
	args := m.Called(ctx, seg)
	return args.Error(0)
}

func (m *DB) UpdateSegmentStatus(ctx context.Context, recordingID string, index int, status, errStr string) error {
	args := m.Called(ctx, recordingID, index, status, errStr)
	return args.Error(0)
}

func (m *DB) LoadSegments(ctx context.Context, recordingID string) ([]*persistence.Segment, error) {
	args := m.Called(ctx, recordingID)
	return To[[]*persistence.Segment](args.Get(0)), args.Error(1)
}

func (m *DB) InsertTranscript(ctx context.Context, tr *persistence.Transcript) error {
	args := m.Called(ctx, tr)
	return args.Error(0)
}

func (m *DB) LoadTranscript(ctx context.Context, recordingID string) (*persistence.Transcript, error) {
	args := m.Called(ctx, recordingID)
	return To[*persistence.Transcript](args.Get(0)), args.Error(1)
}

func (m *DB) LockEmailTable(ctx context.Context, id, key string) error {
	args := m.Called(ctx, id, key)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id, key string, value *int) error {
	args := m.Called(ctx, id, key, value)
	return args.Error(0)
}

func (m *DB) Live(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Transcriber is ASR trigger client mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) TriggerSegment(ctx context.Context, recordingID string, index int, storagePath string) error {
	args := m.Called(ctx, recordingID, index, storagePath)
	return args.Error(0)
}

// Registrar is recording lifecycle mock
type Registrar struct{ mock.Mock }

func (m *Registrar) CreateRecording(ctx context.Context, in *api.CreateRecordingInput, requestID string) (string, error) {
	args := m.Called(ctx, in, requestID)
	return args.String(0), args.Error(1)
}

func (m *Registrar) RecordSegmentArrival(ctx context.Context, recordingID string, index int, in *api.SegmentArrivalInput) error {
	args := m.Called(ctx, recordingID, index, in)
	return args.Error(0)
}

func (m *Registrar) CompleteRecording(ctx context.Context, recordingID string, in *api.CompleteRecordingInput) error {
	args := m.Called(ctx, recordingID, in)
	return args.Error(0)
}

func (m *Registrar) FailRecording(ctx context.Context, recordingID string, in *api.FailRecordingInput) error {
	args := m.Called(ctx, recordingID, in)
	return args.Error(0)
}

func (m *Registrar) SaveSegmentResult(ctx context.Context, recordingID string, index int, in *api.SegmentResultInput) error {
	args := m.Called(ctx, recordingID, index, in)
	return args.Error(0)
}

func (m *Registrar) MarkSummarized(ctx context.Context, recordingID string) error {
	args := m.Called(ctx, recordingID)
	return args.Error(0)
}

// Summarizer is summary trigger client mock
type Summarizer struct{ mock.Mock }

func (m *Summarizer) Trigger(ctx context.Context, recordingID string) error {
	args := m.Called(ctx, recordingID)
	return args.Error(0)
}

// To casts a mock argument, tolerating nil
func To[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
