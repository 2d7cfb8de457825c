package api

import "context"

// Transcriber starts ASR for one stored segment
type Transcriber interface {
	TriggerSegment(ctx context.Context, recordingID string, index int, storagePath string) error
}
