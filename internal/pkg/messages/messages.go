package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "RECPIPE/"
	// Stitch queue name - started after completeRecording
	Stitch = st + "Stitch"
	// Inform queue name - user notifications
	Inform = st + "Inform"
	// StatusChange queue name - recording status snapshots for the ws service
	StatusChange = st + "StatusChange"
	// Fail queue name - recording failure escalation
	Fail = st + "Fail"
)

// StitchMessage starts the stitch workflow for a recording, ID is the recording ID
type StitchMessage struct {
	amessages.QueueMessage
	RequestID string `json:"requestID,omitempty"`
}

// FailMessage marks a recording failed with a human readable reason
type FailMessage struct {
	amessages.QueueMessage
	Reason string `json:"reason,omitempty"`
}
