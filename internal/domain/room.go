package domain

import "strings"

const (
	WaitingRoomLabel       = "WaitingRoom"
	consultationRoomMarker = "consultationroom"
)

// Room is a named virtual space inside a conference.
// Participants and endpoints reference rooms by label.
type Room struct {
	Label  string `json:"label"`
	Locked bool   `json:"locked"`
}

// IsWaitingRoom reports whether label names the generic waiting room.
// A transfer there clears the room assignment.
func IsWaitingRoom(label string) bool {
	l := normalizeLabel(label)
	return l == "" || l == "waitingroom"
}

// IsConsultationRoom reports whether label names a consultation room,
// e.g. "ParticipantConsultationRoom1" or "JudgeJOHConsultationRoom".
func IsConsultationRoom(label string) bool {
	return strings.Contains(normalizeLabel(label), consultationRoomMarker)
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), " ", ""))
}
