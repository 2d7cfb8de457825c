package api

const (
	// PrmEmail - email form/json parameter
	PrmEmail = "email"
	// PrmTitle - recording title parameter
	PrmTitle = "title"

	// RequestIDHeader passes the originating request ID through services
	RequestIDHeader = "x-recpipe-requestid"
)

// CreateRecordingInput is the ingest create request body
type CreateRecordingInput struct {
	Email string `json:"email,omitempty"`
	Title string `json:"title,omitempty"`
}

// SegmentArrivalInput is sent by the client after a successful segment upload
type SegmentArrivalInput struct {
	StoragePath string `json:"storagePath"`
	SizeBytes   int64  `json:"sizeBytes"`
	MimeType    string `json:"mimeType,omitempty"`
}

// CompleteRecordingInput closes a recording
type CompleteRecordingInput struct {
	DurationSeconds int32 `json:"durationSeconds"`
}

// FailRecordingInput marks a recording failed
type FailRecordingInput struct {
	Reason string `json:"reason"`
}

// SpeakerData is one identified speaker in a transcript
type SpeakerData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SegmentResultInput is the transcription collaborator's callback body
type SegmentResultInput struct {
	Transcript string        `json:"transcript"`
	Speakers   []SpeakerData `json:"speakers,omitempty"`
	WordCount  int32         `json:"wordCount"`
	Error      string        `json:"error,omitempty"`
}
