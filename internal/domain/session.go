package domain

import "fmt"

// Session is the server-side avatar session returned by realtime.new.
type Session struct {
	ID         string      `json:"session_id"`
	SDP        SDPPayload  `json:"sdp"`
	ICEServers []ICEServer `json:"ice_servers2"`
}

// NewSessionRequest is the body of realtime.new.
type NewSessionRequest struct {
	Quality    string `json:"quality"`
	AvatarName string `json:"avatar_name"`
	Voice      Voice  `json:"voice"`
}

type Voice struct {
	VoiceID string `json:"voice_id"`
}

// TaskType selects how the avatar handles task text.
type TaskType string

const (
	// TaskTalk lets the avatar respond to the text.
	TaskTalk TaskType = "talk"
	// TaskRepeat makes the avatar speak the text verbatim.
	TaskRepeat TaskType = "repeat"
)

// ParseTaskType validates a task kind received from a front-end.
func ParseTaskType(s string) (TaskType, error) {
	switch TaskType(s) {
	case TaskTalk, TaskRepeat:
		return TaskType(s), nil
	default:
		return "", fmt.Errorf("unknown task type %q", s)
	}
}
