package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meowmeet/recpipe/internal/pkg/persistence"
	"github.com/meowmeet/recpipe/internal/pkg/utils"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

// InsertRecording inserts recording into DB
func (db *DB) InsertRecording(ctx context.Context, rec *persistence.Recording) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO recordings(id, email, title, status, segment_count, request_id, created, updated)
	VALUES($1, $2, $3, $4, $5, $6, $7, $7)`, rec.ID, rec.Email, rec.Title,
		rec.Status,
		rec.SegmentCount,
		rec.RequestID,
		rec.Created,
	)
	if err != nil {
		return fmt.Errorf("can't insert recording: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadRecording loads recording from DB, returns nil if not found
func (db *DB) LoadRecording(ctx context.Context, id string) (*persistence.Recording, error) {
	var res persistence.Recording
	err := db.pool.QueryRow(ctx, `SELECT id, email, title, status, segment_count, duration_seconds,
	error, request_id, created, updated, completed_at, version FROM recordings
		WHERE id = $1`, id).Scan(&res.ID, &res.Email, &res.Title, &res.Status, &res.SegmentCount,
		&res.Duration, &res.Error, &res.RequestID, &res.Created, &res.Updated, &res.Completed, &res.Version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load recording: %w", err)
	}
	return &res, nil
}

// UpdateRecording updates recording status fields using optimistic version lock
func (db *DB) UpdateRecording(ctx context.Context, rec *persistence.Recording) error {
	rows, err := db.pool.Exec(ctx, `UPDATE recordings SET
	status = $3,
	duration_seconds = $4,
	error = $5,
	completed_at = $6,
	updated = $7,
	version = $2 + 1
	WHERE id = $1 and version = $2`, rec.ID, rec.Version, rec.Status,
		rec.Duration, rec.Error, rec.Completed, time.Now())
	if err != nil {
		return fmt.Errorf("can't update recording: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update recording, no records found")
	}
	return nil
}

// BumpSegmentCount increases the recording segment counter
func (db *DB) BumpSegmentCount(ctx context.Context, id string) error {
	rows, err := db.pool.Exec(ctx, `UPDATE recordings SET
	segment_count = segment_count + 1,
	updated = $2
	WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("can't update segment count: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update segment count, no records found")
	}
	return nil
}

// UpsertSegment inserts or refreshes a segment row
func (db *DB) UpsertSegment(ctx context.Context, seg *persistence.Segment) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO segments(recording_id, segment_index, status, storage_path, created, updated)
	VALUES($1, $2, $3, $4, $5, $5)
	ON CONFLICT (recording_id, segment_index) DO UPDATE SET
	status = EXCLUDED.status,
	storage_path = EXCLUDED.storage_path,
	updated = EXCLUDED.updated`, seg.RecordingID, seg.Index, seg.Status, seg.StoragePath, time.Now())
	if err != nil {
		return fmt.Errorf("can't upsert segment: %w", err)
	}
	defer rows.Close()
	return nil
}

// UpdateSegmentResult saves transcription outcome for a segment
func (db *DB) UpdateSegmentResult(ctx context.Context, seg *persistence.Segment) error {
	rows, err := db.pool.Exec(ctx, `UPDATE segments SET
	status = $3,
	transcript = $4,
	speakers = $5,
	word_count = $6,
	error = $7,
	updated = $8
	WHERE recording_id = $1 and segment_index = $2`, seg.RecordingID, seg.Index, seg.Status,
		seg.Transcript, seg.Speakers, seg.WordCount, seg.Error, time.Now())
	if err != nil {
		return fmt.Errorf("can't update segment: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update segment, no records found")
	}
	return nil
}

// UpdateSegmentStatus changes segment status only
func (db *DB) UpdateSegmentStatus(ctx context.Context, recordingID string, index int, status, errStr string) error {
	rows, err := db.pool.Exec(ctx, `UPDATE segments SET
	status = $3,
	error = $4,
	updated = $5
	WHERE recording_id = $1 and segment_index = $2`, recordingID, index, status,
		utils.ToSQLStr(errStr), time.Now())
	if err != nil {
		return fmt.Errorf("can't update segment status: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update segment status, no records found")
	}
	return nil
}

// LoadSegments loads all segments of a recording ordered by index
func (db *DB) LoadSegments(ctx context.Context, recordingID string) ([]*persistence.Segment, error) {
	rows, err := db.pool.Query(ctx, `SELECT recording_id, segment_index, status, storage_path, transcript,
	speakers, word_count, error, created, updated FROM segments
		WHERE recording_id = $1 ORDER BY segment_index`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("can't load segments: %w", err)
	}
	defer rows.Close()
	res := []*persistence.Segment{}
	for rows.Next() {
		var seg persistence.Segment
		if err := rows.Scan(&seg.RecordingID, &seg.Index, &seg.Status, &seg.StoragePath, &seg.Transcript,
			&seg.Speakers, &seg.WordCount, &seg.Error, &seg.Created, &seg.Updated); err != nil {
			return nil, fmt.Errorf("can't scan segment: %w", err)
		}
		res = append(res, &seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't load segments: %w", err)
	}
	return res, nil
}

// InsertTranscript inserts stitched transcript into DB
func (db *DB) InsertTranscript(ctx context.Context, tr *persistence.Transcript) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO transcripts(recording_id, content, speakers, word_count, created)
	VALUES($1, $2, $3, $4, $5)`, tr.RecordingID, tr.Content, tr.Speakers, tr.WordCount, tr.Created)
	if err != nil {
		return fmt.Errorf("can't insert transcript: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadTranscript loads stitched transcript, returns nil if not found
func (db *DB) LoadTranscript(ctx context.Context, recordingID string) (*persistence.Transcript, error) {
	var res persistence.Transcript
	err := db.pool.QueryRow(ctx, `SELECT recording_id, content, speakers, word_count, created FROM transcripts
		WHERE recording_id = $1`, recordingID).Scan(&res.RecordingID, &res.Content, &res.Speakers,
		&res.WordCount, &res.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load transcript: %w", err)
	}
	return &res, nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
