package stitch

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/meowmeet/recpipe/internal/pkg/persistence"
	"github.com/meowmeet/recpipe/internal/pkg/status"
	"github.com/meowmeet/recpipe/internal/pkg/utils"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultWaitTimeout  = 5 * time.Minute
)

// DB provides data access
type DB interface {
	LoadRecording(ctx context.Context, id string) (*persistence.Recording, error)
	UpdateRecording(ctx context.Context, rec *persistence.Recording) error
	LoadSegments(ctx context.Context, recordingID string) ([]*persistence.Segment, error)
	InsertTranscript(ctx context.Context, tr *persistence.Transcript) error
}

// Summarizer starts summary generation
type Summarizer interface {
	Trigger(ctx context.Context, recordingID string) error
}

// Data keeps stitcher dependencies
type Data struct {
	DB           DB
	Summarizer   Summarizer
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// Stitcher assembles the final transcript from segment results
type Stitcher struct {
	db           DB
	summarizer   Summarizer
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// NewStitcher creates stitcher instance
func NewStitcher(data *Data) (*Stitcher, error) {
	if data == nil {
		return nil, fmt.Errorf("no data")
	}
	if data.DB == nil {
		return nil, fmt.Errorf("no DB")
	}
	if data.Summarizer == nil {
		return nil, fmt.Errorf("no summarizer")
	}
	res := &Stitcher{db: data.DB, summarizer: data.Summarizer,
		pollInterval: data.PollInterval, waitTimeout: data.WaitTimeout}
	if res.pollInterval <= 0 {
		res.pollInterval = defaultPollInterval
	}
	if res.waitTimeout <= 0 {
		res.waitTimeout = defaultWaitTimeout
	}
	return res, nil
}

// Run waits for all segment transcripts and stitches them into one document.
// On timeout or an empty result the recording is marked failed and the error returned
func (s *Stitcher) Run(ctx context.Context, recordingID string) error {
	rec, err := s.db.LoadRecording(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("can't load recording: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no recording '%s'", recordingID)
	}
	if status.RecordingFrom(rec.Status).Terminal() {
		goapp.Log.Warn().Str("ID", recordingID).Str("status", rec.Status).Msg("skip, already terminal")
		return nil
	}
	rec.Status = status.RecTranscribing.String()
	if err := s.db.UpdateRecording(ctx, rec); err != nil {
		return fmt.Errorf("can't update recording: %w", err)
	}

	segs, err := s.waitForSegments(ctx, recordingID)
	if err != nil {
		return s.fail(ctx, recordingID, err)
	}
	tr, err := merge(segs)
	if err != nil {
		return s.fail(ctx, recordingID, err)
	}
	tr.RecordingID = recordingID
	tr.Created = time.Now()
	if err := s.db.InsertTranscript(ctx, tr); err != nil {
		return fmt.Errorf("can't insert transcript: %w", err)
	}
	if err := s.updateStatus(ctx, recordingID, status.RecSummarizing, ""); err != nil {
		return err
	}
	go s.triggerSummary(recordingID)
	goapp.Log.Info().Str("ID", recordingID).Int32("words", tr.WordCount).Msg("transcript stitched")
	return nil
}

func (s *Stitcher) waitForSegments(ctx context.Context, recordingID string) ([]*persistence.Segment, error) {
	ctx, cancelF := context.WithTimeout(ctx, s.waitTimeout)
	defer cancelF()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		segs, err := s.db.LoadSegments(ctx, recordingID)
		if err != nil {
			return nil, fmt.Errorf("can't load segments: %w", err)
		}
		if len(segs) > 0 && allTerminal(segs) {
			return segs, nil
		}
		goapp.Log.Debug().Str("ID", recordingID).Int("segments", len(segs)).Msg("waiting for transcripts")
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for segment transcripts")
		}
	}
}

func allTerminal(segs []*persistence.Segment) bool {
	for _, seg := range segs {
		if !status.SegmentFrom(seg.Status).Terminal() {
			return false
		}
	}
	return true
}

func merge(segs []*persistence.Segment) (*persistence.Transcript, error) {
	sort.Slice(segs, func(i, j int) bool { return segs[i].Index < segs[j].Index })
	parts := make([]string, 0, len(segs))
	speakers := map[string]persistence.Speaker{}
	var words int32
	for _, seg := range segs {
		if status.SegmentFrom(seg.Status) != status.SegTranscribed {
			goapp.Log.Warn().Str("ID", seg.RecordingID).Int("index", seg.Index).Msg("skip failed segment")
			continue
		}
		parts = append(parts, seg.Transcript.String)
		words += utils.FromSQLInt32OrZero(seg.WordCount)
		for _, sp := range seg.Speakers {
			speakers[sp.ID] = sp
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no transcribed segments")
	}
	return &persistence.Transcript{Content: strings.Join(parts, "\n"),
		Speakers: sortSpeakers(speakers), WordCount: words}, nil
}

func sortSpeakers(m map[string]persistence.Speaker) []persistence.Speaker {
	res := make([]persistence.Speaker, 0, len(m))
	for _, sp := range m {
		res = append(res, sp)
	}
	sort.Slice(res, func(i, j int) bool {
		vi, ei := strconv.Atoi(res[i].ID)
		vj, ej := strconv.Atoi(res[j].ID)
		if ei == nil && ej == nil {
			return vi < vj
		}
		return res[i].ID < res[j].ID
	})
	return res
}

func (s *Stitcher) fail(ctx context.Context, recordingID string, cause error) error {
	if err := s.updateStatus(ctx, recordingID, status.RecFailed, cause.Error()); err != nil {
		goapp.Log.Error().Err(err).Str("ID", recordingID).Msg("can't mark recording failed")
	}
	return fmt.Errorf("can't stitch: %w", cause)
}

func (s *Stitcher) updateStatus(ctx context.Context, recordingID string, st status.Recording, errStr string) error {
	rec, err := s.db.LoadRecording(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("can't load recording: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no recording '%s'", recordingID)
	}
	rec.Status = st.String()
	rec.Error = utils.ToSQLStr(errStr)
	if st.Terminal() {
		rec.Completed = utils.ToSQLTime(time.Now())
	}
	if err := s.db.UpdateRecording(ctx, rec); err != nil {
		return fmt.Errorf("can't update recording: %w", err)
	}
	return nil
}

func (s *Stitcher) triggerSummary(recordingID string) {
	ctx, cancelF := context.WithTimeout(context.Background(), time.Minute)
	defer cancelF()
	if err := s.summarizer.Trigger(ctx, recordingID); err != nil {
		goapp.Log.Error().Err(err).Str("ID", recordingID).Msg("can't start summary")
	}
}
