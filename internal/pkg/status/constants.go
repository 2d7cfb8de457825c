package status

// Recording represents recording lifecycle status
type Recording int

const (
	// RecRecording - client is still capturing
	RecRecording Recording = iota + 1
	// RecUploading - capture finished, segments still arriving
	RecUploading
	// RecTranscribing - stitch coordinator waits for segment transcripts
	RecTranscribing
	// RecSummarizing - transcript stitched, summary pending
	RecSummarizing
	// RecCompleted - final step
	RecCompleted
	// RecFailed - terminal failure
	RecFailed
)

var (
	recordingName = map[Recording]string{RecRecording: "RECORDING", RecUploading: "UPLOADING",
		RecTranscribing: "TRANSCRIBING", RecSummarizing: "SUMMARIZING",
		RecCompleted: "COMPLETED", RecFailed: "FAILED"}
	nameRecording = map[string]Recording{"RECORDING": RecRecording, "UPLOADING": RecUploading,
		"TRANSCRIBING": RecTranscribing, "SUMMARIZING": RecSummarizing,
		"COMPLETED": RecCompleted, "FAILED": RecFailed}
)

func (st Recording) String() string {
	return recordingName[st]
}

// RecordingFrom returns status obj from string
func RecordingFrom(st string) Recording {
	return nameRecording[st]
}

// Terminal returns true if no further automatic transition occurs
func (st Recording) Terminal() bool {
	return st == RecCompleted || st == RecFailed
}

// Segment represents per-segment delivery status
type Segment int

const (
	// SegUploading - delivery attempt in progress
	SegUploading Segment = iota + 1
	// SegUploaded - stored remotely, transcription not yet done
	SegUploaded
	// SegTranscribing - transcription in progress
	SegTranscribing
	// SegTranscribed - terminal, content fields set
	SegTranscribed
	// SegFailed - terminal failure (upload or transcription)
	SegFailed
)

var (
	segmentName = map[Segment]string{SegUploading: "UPLOADING", SegUploaded: "UPLOADED",
		SegTranscribing: "TRANSCRIBING", SegTranscribed: "TRANSCRIBED", SegFailed: "FAILED"}
	nameSegment = map[string]Segment{"UPLOADING": SegUploading, "UPLOADED": SegUploaded,
		"TRANSCRIBING": SegTranscribing, "TRANSCRIBED": SegTranscribed, "FAILED": SegFailed}
)

func (st Segment) String() string {
	return segmentName[st]
}

// SegmentFrom returns status obj from string
func SegmentFrom(st string) Segment {
	return nameSegment[st]
}

// Terminal returns true for statuses the stitch coordinator stops waiting on
func (st Segment) Terminal() bool {
	return st == SegTranscribed || st == SegFailed
}
