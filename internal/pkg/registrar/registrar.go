package registrar

import (
	"context"
	"errors"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/meowmeet/recpipe/internal/pkg/api"
	"github.com/meowmeet/recpipe/internal/pkg/messages"
	"github.com/meowmeet/recpipe/internal/pkg/persistence"
	"github.com/meowmeet/recpipe/internal/pkg/status"
	"github.com/meowmeet/recpipe/internal/pkg/utils"
)

// ErrNotFound indicates unknown recording ID
var ErrNotFound = errors.New("recording not found")

// DB provides data access
type DB interface {
	InsertRecording(ctx context.Context, rec *persistence.Recording) error
	LoadRecording(ctx context.Context, id string) (*persistence.Recording, error)
	UpdateRecording(ctx context.Context, rec *persistence.Recording) error
	BumpSegmentCount(ctx context.Context, id string) error
	UpsertSegment(ctx context.Context, seg *persistence.Segment) error
	UpdateSegmentResult(ctx context.Context, seg *persistence.Segment) error
	UpdateSegmentStatus(ctx context.Context, recordingID string, index int, status, errStr string) error
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Transcriber starts ASR for one uploaded segment
type Transcriber interface {
	TriggerSegment(ctx context.Context, recordingID string, index int, storagePath string) error
}

// Data keeps dependencies of the registrar
type Data struct {
	DB          DB
	MsgSender   MsgSender
	Transcriber Transcriber
}

// Registrar implements the server-side recording lifecycle
type Registrar struct {
	db          DB
	msgSender   MsgSender
	transcriber Transcriber
}

// NewRegistrar creates registrar instance
func NewRegistrar(data *Data) (*Registrar, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	return &Registrar{db: data.DB, msgSender: data.MsgSender, transcriber: data.Transcriber}, nil
}

func validate(data *Data) error {
	if data == nil {
		return fmt.Errorf("no data")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Transcriber == nil {
		return fmt.Errorf("no transcriber")
	}
	return nil
}

// CreateRecording registers a new recording, returns its ID
func (r *Registrar) CreateRecording(ctx context.Context, in *api.CreateRecordingInput, requestID string) (string, error) {
	rec := &persistence.Recording{ID: uuid.NewString(), Email: utils.ToSQLStr(in.Email),
		Title: utils.ToSQLStr(in.Title), Status: status.RecRecording.String(),
		RequestID: requestID, Created: time.Now()}
	if err := r.db.InsertRecording(ctx, rec); err != nil {
		return "", fmt.Errorf("can't insert recording: %w", err)
	}
	r.sendStatusChange(ctx, rec.ID)
	goapp.Log.Info().Str("ID", rec.ID).Str("requestID", requestID).Msg("recording created")
	return rec.ID, nil
}

// RecordSegmentArrival registers an uploaded segment and starts its transcription.
// Trigger failure marks the segment failed, the recording stays live
func (r *Registrar) RecordSegmentArrival(ctx context.Context, recordingID string, index int, in *api.SegmentArrivalInput) error {
	rec, err := r.loadRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if status.RecordingFrom(rec.Status).Terminal() {
		return fmt.Errorf("recording %s is %s", recordingID, rec.Status)
	}
	seg := &persistence.Segment{RecordingID: recordingID, Index: index,
		Status: status.SegUploaded.String(), StoragePath: utils.ToSQLStr(in.StoragePath)}
	if err := r.db.UpsertSegment(ctx, seg); err != nil {
		return fmt.Errorf("can't save segment: %w", err)
	}
	if err := r.db.BumpSegmentCount(ctx, recordingID); err != nil {
		return fmt.Errorf("can't update count: %w", err)
	}
	r.sendStatusChange(ctx, recordingID)
	go r.triggerTranscription(recordingID, index, in.StoragePath)
	return nil
}

func (r *Registrar) triggerTranscription(recordingID string, index int, storagePath string) {
	ctx, cancelF := context.WithTimeout(context.Background(), time.Minute)
	defer cancelF()
	if err := r.transcriber.TriggerSegment(ctx, recordingID, index, storagePath); err != nil {
		goapp.Log.Error().Err(err).Str("ID", recordingID).Int("index", index).Msg("can't start transcription")
		if uErr := r.db.UpdateSegmentStatus(ctx, recordingID, index, status.SegFailed.String(), err.Error()); uErr != nil {
			goapp.Log.Error().Err(uErr).Str("ID", recordingID).Int("index", index).Msg("can't mark segment failed")
		}
		return
	}
	if err := r.db.UpdateSegmentStatus(ctx, recordingID, index, status.SegTranscribing.String(), ""); err != nil {
		goapp.Log.Error().Err(err).Str("ID", recordingID).Int("index", index).Msg("can't update segment")
	}
}

// CompleteRecording moves recording to uploading and queues the stitch job
func (r *Registrar) CompleteRecording(ctx context.Context, recordingID string, in *api.CompleteRecordingInput) error {
	rec, err := r.loadRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if status.RecordingFrom(rec.Status).Terminal() {
		return fmt.Errorf("recording %s is %s", recordingID, rec.Status)
	}
	rec.Status = status.RecUploading.String()
	rec.Duration = utils.ToSQLInt32(in.DurationSeconds)
	if err := r.db.UpdateRecording(ctx, rec); err != nil {
		return fmt.Errorf("can't update recording: %w", err)
	}
	if err := r.msgSender.SendMessage(ctx, &messages.StitchMessage{
		QueueMessage: amessages.QueueMessage{ID: recordingID}, RequestID: rec.RequestID},
		messages.Stitch); err != nil {
		return fmt.Errorf("can't send stitch msg: %w", err)
	}
	r.sendStatusChange(ctx, recordingID)
	goapp.Log.Info().Str("ID", recordingID).Msg("recording complete, stitch queued")
	return nil
}

// FailRecording marks the recording failed, terminal
func (r *Registrar) FailRecording(ctx context.Context, recordingID string, in *api.FailRecordingInput) error {
	rec, err := r.loadRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if status.RecordingFrom(rec.Status).Terminal() {
		return nil
	}
	rec.Status = status.RecFailed.String()
	rec.Error = utils.ToSQLStr(in.Reason)
	rec.Completed = utils.ToSQLTime(time.Now())
	if err := r.db.UpdateRecording(ctx, rec); err != nil {
		return fmt.Errorf("can't update recording: %w", err)
	}
	r.sendStatusChange(ctx, recordingID)
	r.sendInform(ctx, recordingID, amessages.InformTypeFailed)
	return nil
}

// SaveSegmentResult stores the ASR callback outcome for a segment
func (r *Registrar) SaveSegmentResult(ctx context.Context, recordingID string, index int, in *api.SegmentResultInput) error {
	if _, err := r.loadRecording(ctx, recordingID); err != nil {
		return err
	}
	if in.Error != "" {
		if err := r.db.UpdateSegmentStatus(ctx, recordingID, index, status.SegFailed.String(), in.Error); err != nil {
			return fmt.Errorf("can't save segment result: %w", err)
		}
		r.sendStatusChange(ctx, recordingID)
		return nil
	}
	seg := &persistence.Segment{RecordingID: recordingID, Index: index,
		Status:     status.SegTranscribed.String(),
		Transcript: utils.ToSQLStr(in.Transcript),
		Speakers:   mapSpeakers(in.Speakers),
		WordCount:  utils.ToSQLInt32(in.WordCount)}
	if err := r.db.UpdateSegmentResult(ctx, seg); err != nil {
		return fmt.Errorf("can't save segment result: %w", err)
	}
	r.sendStatusChange(ctx, recordingID)
	return nil
}

// MarkSummarized finishes the recording and informs the user
func (r *Registrar) MarkSummarized(ctx context.Context, recordingID string) error {
	rec, err := r.loadRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if status.RecordingFrom(rec.Status).Terminal() {
		return fmt.Errorf("recording %s is %s", recordingID, rec.Status)
	}
	rec.Status = status.RecCompleted.String()
	rec.Completed = utils.ToSQLTime(time.Now())
	if err := r.db.UpdateRecording(ctx, rec); err != nil {
		return fmt.Errorf("can't update recording: %w", err)
	}
	r.sendStatusChange(ctx, recordingID)
	r.sendInform(ctx, recordingID, amessages.InformTypeFinished)
	goapp.Log.Info().Str("ID", recordingID).Msg("recording completed")
	return nil
}

func (r *Registrar) loadRecording(ctx context.Context, id string) (*persistence.Recording, error) {
	rec, err := r.db.LoadRecording(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load recording: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (r *Registrar) sendStatusChange(ctx context.Context, id string) {
	if err := r.msgSender.SendMessage(ctx, &amessages.QueueMessage{ID: id}, messages.StatusChange); err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("can't send status change")
	}
}

func (r *Registrar) sendInform(ctx context.Context, id, informType string) {
	if err := r.msgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: id}, Type: informType, At: time.Now()},
		messages.Inform); err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("can't send inform msg")
	}
}

func mapSpeakers(in []api.SpeakerData) []persistence.Speaker {
	res := make([]persistence.Speaker, 0, len(in))
	for _, s := range in {
		res = append(res, persistence.Speaker{ID: s.ID, Name: s.Name})
	}
	return res
}
