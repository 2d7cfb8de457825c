package persistence

import (
	"database/sql"
	"time"
)

type (

	// Recording table - one row per recording session
	Recording struct {
		ID           string
		Email        sql.NullString
		Title        sql.NullString
		Status       string
		SegmentCount int
		Duration     sql.NullInt32
		Error        sql.NullString
		RequestID    string
		Created      time.Time
		Updated      time.Time
		Completed    sql.NullTime
		Version      int32
	}

	// Speaker identity within a transcript
	Speaker struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Segment table - one row per (recording, segment index)
	Segment struct {
		RecordingID string
		Index       int
		Status      string
		StoragePath sql.NullString
		Transcript  sql.NullString
		Speakers    []Speaker
		WordCount   sql.NullInt32
		Error       sql.NullString
		Created     time.Time
		Updated     time.Time
	}

	// Transcript table - the stitched result, one row per recording
	Transcript struct {
		RecordingID string
		Content     string
		Speakers    []Speaker
		WordCount   int32
		Created     time.Time
	}
)
